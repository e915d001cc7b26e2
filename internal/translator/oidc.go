package translator

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// oidcClaims is the subset of standard OIDC claims the bridge reads.
type oidcClaims struct {
	Sub         string  `mapstructure:"sub"`
	Iss         string  `mapstructure:"iss"`
	Email       string  `mapstructure:"email"`
	GivenName   string  `mapstructure:"given_name"`
	FamilyName  string  `mapstructure:"family_name"`
	Name        string  `mapstructure:"name"`
	AuthTime    float64 `mapstructure:"auth_time"`
	Iat         float64 `mapstructure:"iat"`
	Roles       any     `mapstructure:"roles"`
	RealmAccess struct {
		Roles any `mapstructure:"roles"`
	} `mapstructure:"realm_access"`
}

// FromOIDC maps an OIDC claim set to a normalized identity. sub is the
// correlation key and must be present. Roles come from realm_access.roles
// (Keycloak) or a top-level roles claim.
func (t *Translator) FromOIDC(claims map[string]any) (*NormalizedIdentity, error) {
	var c oidcClaims
	if err := mapstructure.Decode(claims, &c); err != nil {
		return nil, fmt.Errorf("%w: decode OIDC claims: %v", ErrInvalidInput, err)
	}
	if c.Sub == "" {
		return nil, fmt.Errorf("%w: OIDC claims missing sub", ErrInvalidInput)
	}

	roles := asStringList(c.RealmAccess.Roles)
	if len(roles) == 0 {
		roles = asStringList(c.Roles)
	}

	authTime := t.now()
	switch {
	case c.AuthTime > 0:
		authTime = time.Unix(int64(c.AuthTime), 0).UTC()
	case c.Iat > 0:
		authTime = time.Unix(int64(c.Iat), 0).UTC()
	}

	display := c.Name
	if display == "" {
		display = joinName(c.GivenName, c.FamilyName)
	}

	return &NormalizedIdentity{
		ID:           c.Sub,
		AuthProtocol: ProtocolOIDC,
		AuthProvider: c.Iss,
		Email:        c.Email,
		FirstName:    c.GivenName,
		LastName:     c.FamilyName,
		DisplayName:  display,
		Roles:        roles,
		Attributes:   claims,
		AuthTime:     authTime,
	}, nil
}
