package translator

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a session token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims holds JWT claims for the bridge session token. The migration
// fields let downstream services adjust behavior without a mapping lookup.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email           string   `json:"email,omitempty"`
	Name            string   `json:"name,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	DID             string   `json:"did,omitempty"`
	AuthProvider    string   `json:"auth_provider,omitempty"`
	MigrationPhase  string   `json:"migration_phase"`
	WalletConnected bool     `json:"wallet_connected"`
}

// SessionContext is the mapping-derived state stamped onto session tokens.
type SessionContext struct {
	Subject         string
	DID             string
	MigrationPhase  string
	WalletConnected bool
}

// IssueSession signs a session JWT for the identity with the given migration
// context. Returns the token string, its jti, and expiration time.
func (t *Translator) IssueSession(identity *NormalizedIdentity, sc SessionContext) (token, jti string, expiresAt time.Time, err error) {
	if identity == nil || sc.Subject == "" {
		return "", "", time.Time{}, ErrInvalidInput
	}
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := t.now()
	expiresAt = now.Add(t.sessionTTL)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sc.Subject,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:           identity.Email,
		Name:            identity.DisplayName,
		Roles:           identity.Roles,
		DID:             sc.DID,
		AuthProvider:    identity.AuthProvider,
		MigrationPhase:  sc.MigrationPhase,
		WalletConnected: sc.WalletConnected,
	}
	token, err = t.sign(claims)
	return token, jti, expiresAt, err
}

func (t *Translator) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch t.signingKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	tok := jwt.NewWithClaims(method, claims)
	return tok.SignedString(t.signingKey)
}

// ValidateSession parses and validates a session token (signature, exp, iss,
// aud) and returns its claims.
func (t *Translator) ValidateSession(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return t.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return t.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != t.issuer {
		return nil, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == t.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
