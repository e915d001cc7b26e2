package translator

import (
	"fmt"
	"time"
)

// SAMLAssertion is the already-parsed, already-authenticated assertion the
// upstream IdP adapter delivers. The bridge never parses raw XML or checks
// protocol signatures itself.
type SAMLAssertion struct {
	NameID       string
	Issuer       string
	AuthnInstant time.Time
	Attributes   map[string]any
}

// Standard SAML attribute URNs, with plain attribute names as fallback.
const (
	samlAttrEmail     = "urn:oid:0.9.2342.19200300.100.1.3"
	samlAttrFirstName = "urn:oid:2.5.4.42"
	samlAttrLastName  = "urn:oid:2.5.4.4"
	samlAttrDisplay   = "urn:oid:2.16.840.1.113730.3.1.241"
	samlAttrRoles     = "urn:oid:2.5.4.72"
)

// FromSAML maps a SAML assertion to a normalized identity. NameID is the
// correlation key and must be present.
func (t *Translator) FromSAML(a *SAMLAssertion) (*NormalizedIdentity, error) {
	if a == nil || a.NameID == "" {
		return nil, fmt.Errorf("%w: SAML assertion missing NameID", ErrInvalidInput)
	}

	attr := func(urn, plain string) string {
		if v := asString(a.Attributes[urn]); v != "" {
			return v
		}
		return asString(a.Attributes[plain])
	}

	roles := asStringList(a.Attributes[samlAttrRoles])
	if len(roles) == 0 {
		roles = asStringList(a.Attributes["roles"])
	}

	authTime := a.AuthnInstant
	if authTime.IsZero() {
		authTime = t.now()
	}

	firstName := attr(samlAttrFirstName, "firstName")
	lastName := attr(samlAttrLastName, "lastName")
	display := attr(samlAttrDisplay, "displayName")
	if display == "" && (firstName != "" || lastName != "") {
		display = joinName(firstName, lastName)
	}

	return &NormalizedIdentity{
		ID:           a.NameID,
		AuthProtocol: ProtocolSAML,
		AuthProvider: a.Issuer,
		Email:        attr(samlAttrEmail, "email"),
		FirstName:    firstName,
		LastName:     lastName,
		DisplayName:  display,
		Roles:        roles,
		Attributes:   a.Attributes,
		AuthTime:     authTime,
	}, nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
