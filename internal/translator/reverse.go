package translator

import "fmt"

// ToSAML renders a normalized identity as the attribute statement an outbound
// SAML adapter would sign and encode. The bridge emits the unsigned
// intermediate only; XML serialization and signing belong to the adapter.
func (t *Translator) ToSAML(identity *NormalizedIdentity) (*SAMLAssertion, error) {
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("%w: identity missing correlation id", ErrInvalidInput)
	}

	attrs := map[string]any{
		samlAttrEmail:     identity.Email,
		samlAttrFirstName: identity.FirstName,
		samlAttrLastName:  identity.LastName,
		samlAttrDisplay:   identity.DisplayName,
	}
	if len(identity.Roles) > 0 {
		attrs[samlAttrRoles] = identity.Roles
	}

	authTime := identity.AuthTime
	if authTime.IsZero() {
		authTime = t.now()
	}

	return &SAMLAssertion{
		NameID:       identity.ID,
		Issuer:       t.issuer,
		AuthnInstant: authTime,
		Attributes:   attrs,
	}, nil
}

// ToOIDC renders a normalized identity as the claim set an outbound OIDC
// token endpoint would sign. The bridge is the issuer; sub is the correlation
// id, which for SSI-originated identities is the DID.
func (t *Translator) ToOIDC(identity *NormalizedIdentity) (map[string]any, error) {
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("%w: identity missing correlation id", ErrInvalidInput)
	}

	now := t.now()
	authTime := identity.AuthTime
	if authTime.IsZero() {
		authTime = now
	}

	claims := map[string]any{
		"sub":       identity.ID,
		"iss":       t.issuer,
		"aud":       t.audience,
		"iat":       now.Unix(),
		"exp":       now.Add(t.sessionTTL).Unix(),
		"auth_time": authTime.Unix(),
	}
	if identity.Email != "" {
		claims["email"] = identity.Email
	}
	if identity.FirstName != "" {
		claims["given_name"] = identity.FirstName
	}
	if identity.LastName != "" {
		claims["family_name"] = identity.LastName
	}
	if identity.DisplayName != "" {
		claims["name"] = identity.DisplayName
	}
	if len(identity.Roles) > 0 {
		claims["roles"] = identity.Roles
	}
	return claims, nil
}
