// Package translator converts provider-specific credential assertions (SAML
// attributes, OIDC claims, verifiable credentials, DID documents) into the
// protocol-agnostic normalized identity, and back. All transformations are
// pure; nothing here touches storage or the network.
package translator

import (
	"crypto"
	"errors"
	"time"
)

// Sentinel errors. A missing correlation key fails fast: defaulting it would
// corrupt the mapping store.
var (
	ErrInvalidInput           = errors.New("invalid protocol payload")
	ErrInvalidCredentialShape = errors.New("invalid credential shape")
)

// Protocol names used in AuthProtocol and the translate dispatch table.
const (
	ProtocolSAML = "saml"
	ProtocolOIDC = "oidc"
	ProtocolVC   = "vc"
	ProtocolDID  = "did"
)

// NormalizedIdentity is the transient, protocol-agnostic identity produced by
// extraction and consumed by the correlator. Never persisted directly.
type NormalizedIdentity struct {
	ID           string
	AuthProtocol string
	AuthProvider string
	Email        string
	FirstName    string
	LastName     string
	DisplayName  string
	Roles        []string
	Attributes   map[string]any
	AuthTime     time.Time
}

// Translator converts between protocol representations. Construct one per
// process with the bridge's issuer identity and signing key; it is safe for
// concurrent use.
type Translator struct {
	issuer     string
	audience   string
	bridgeDID  string
	signingKey crypto.Signer
	publicKey  crypto.PublicKey
	sessionTTL time.Duration
	now        func() time.Time
}

// New returns a Translator. issuer and audience go on session tokens;
// bridgeDID is the issuer recorded on credentials the bridge mints.
// now may be nil (defaults to time.Now UTC).
func New(issuer, audience, bridgeDID string, signingKey crypto.Signer, publicKey crypto.PublicKey, sessionTTL time.Duration, now func() time.Time) *Translator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Translator{
		issuer:     issuer,
		audience:   audience,
		bridgeDID:  bridgeDID,
		signingKey: signingKey,
		publicKey:  publicKey,
		sessionTTL: sessionTTL,
		now:        now,
	}
}

// BridgeDID returns the DID the translator records as issuer on minted credentials.
func (t *Translator) BridgeDID() string { return t.bridgeDID }

// asString coerces a scalar attribute to string; non-strings become "".
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asStringList coerces an attribute to a list of strings, accepting a scalar
// (some IdPs deliver single-valued role attributes unwrapped), a []string, or
// a []any of strings.
func asStringList(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
