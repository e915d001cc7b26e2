package translator

import (
	"fmt"

	ssidomain "ssi-migration-bridge/internal/ssi/domain"
)

// identityServiceType marks the DID document service entry carrying profile data.
const identityServiceType = "IdentityService"

// FromDIDDocument maps a DID document to a normalized identity. The document
// id is the correlation key. A DID document carries no inherent profile
// claims, so email, names, and roles come only from an IdentityService entry
// when the document has one; the auth provider is the DID method.
func (t *Translator) FromDIDDocument(doc *ssidomain.DIDDocument) (*NormalizedIdentity, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("%w: DID document missing id", ErrInvalidInput)
	}

	identity := &NormalizedIdentity{
		ID:           doc.ID,
		AuthProtocol: ProtocolDID,
		AuthProvider: "did:" + ssidomain.Method(doc.ID),
		Attributes:   map[string]any{},
		AuthTime:     t.now(),
	}

	for _, svc := range doc.Service {
		if svc.Type != identityServiceType || svc.Properties == nil {
			continue
		}
		identity.Email = asString(svc.Properties["email"])
		identity.FirstName = asString(svc.Properties["firstName"])
		identity.LastName = asString(svc.Properties["lastName"])
		identity.DisplayName = asString(svc.Properties["displayName"])
		identity.Roles = asStringList(svc.Properties["roles"])
		for k, v := range svc.Properties {
			identity.Attributes[k] = v
		}
		break
	}
	if identity.DisplayName == "" {
		identity.DisplayName = joinName(identity.FirstName, identity.LastName)
	}
	return identity, nil
}
