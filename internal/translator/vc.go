package translator

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	ssidomain "ssi-migration-bridge/internal/ssi/domain"
)

// identitySubject is the credential subject layout of an IdentityCredential.
type identitySubject struct {
	ID          string   `mapstructure:"id"`
	Email       string   `mapstructure:"email"`
	FirstName   string   `mapstructure:"firstName"`
	LastName    string   `mapstructure:"lastName"`
	DisplayName string   `mapstructure:"displayName"`
	Roles       []string `mapstructure:"roles"`
}

// FromCredential maps a verifiable credential to a normalized identity.
// credentialSubject.id is the correlation key and must be present.
func (t *Translator) FromCredential(vc *ssidomain.VerifiableCredential) (*NormalizedIdentity, error) {
	if vc == nil {
		return nil, fmt.Errorf("%w: credential is nil", ErrInvalidInput)
	}
	if vc.SubjectID() == "" {
		return nil, fmt.Errorf("%w: credentialSubject.id is required", ErrInvalidInput)
	}

	var sub identitySubject
	if err := mapstructure.Decode(vc.CredentialSubject, &sub); err != nil {
		return nil, fmt.Errorf("%w: decode credential subject: %v", ErrInvalidInput, err)
	}

	display := sub.DisplayName
	if display == "" {
		display = joinName(sub.FirstName, sub.LastName)
	}

	attrs := make(map[string]any, len(vc.CredentialSubject))
	for k, v := range vc.CredentialSubject {
		attrs[k] = v
	}

	return &NormalizedIdentity{
		ID:           sub.ID,
		AuthProtocol: ProtocolVC,
		AuthProvider: vc.Issuer,
		Email:        sub.Email,
		FirstName:    sub.FirstName,
		LastName:     sub.LastName,
		DisplayName:  display,
		Roles:        sub.Roles,
		Attributes:   attrs,
		AuthTime:     vc.IssuanceDate,
	}, nil
}

// ToCredential builds an IdentityCredential for the identity with the given
// subject DID, issued by the bridge. The output is validated against the
// constraints a verifier would apply before it is returned; translation to a
// VC is lossy on protocol-level fields (authProtocol, authProvider), which
// the identity credential schema does not model.
func (t *Translator) ToCredential(identity *NormalizedIdentity, subjectDID string) (*ssidomain.VerifiableCredential, error) {
	if identity == nil || subjectDID == "" {
		return nil, fmt.Errorf("%w: identity and subject DID are required", ErrInvalidInput)
	}

	now := t.now()
	expiry := now.AddDate(1, 0, 0)
	subject := map[string]any{
		"id":          subjectDID,
		"email":       identity.Email,
		"firstName":   identity.FirstName,
		"lastName":    identity.LastName,
		"displayName": identity.DisplayName,
		"roles":       identity.Roles,
	}

	vc := &ssidomain.VerifiableCredential{
		Context:           []string{ssidomain.CredentialContext},
		ID:                "urn:uuid:" + uuid.New().String(),
		Type:              []string{"VerifiableCredential", "IdentityCredential"},
		Issuer:            t.bridgeDID,
		IssuanceDate:      now,
		ExpirationDate:    &expiry,
		CredentialSubject: subject,
	}
	if err := vc.CheckShape(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentialShape, err)
	}
	return vc, nil
}
