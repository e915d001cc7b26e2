package domain

import (
	"errors"
	"time"
)

// CredentialContext is the base W3C credentials context.
const CredentialContext = "https://www.w3.org/2018/credentials/v1"

// VerifiableCredential is a W3C verifiable credential. Proofs are mock-signed
// in this system; see the security.CredentialSigner capability.
type VerifiableCredential struct {
	Context           []string       `json:"@context"`
	ID                string         `json:"id"`
	Type              []string       `json:"type"`
	Issuer            string         `json:"issuer"`
	IssuanceDate      time.Time      `json:"issuanceDate"`
	ExpirationDate    *time.Time     `json:"expirationDate,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject"`
	Proof             *Proof         `json:"proof,omitempty"`
}

// Proof is a credential or presentation proof.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod,omitempty"`
	ProofPurpose       string    `json:"proofPurpose,omitempty"`
	ProofValue         string    `json:"proofValue"`
}

// Presentation is a W3C verifiable presentation bundling credentials a holder
// presents to a verifier.
type Presentation struct {
	Context              []string               `json:"@context"`
	ID                   string                 `json:"id"`
	Type                 []string               `json:"type"`
	Holder               string                 `json:"holder"`
	VerifiableCredential []VerifiableCredential `json:"verifiableCredential"`
	Proof                *Proof                 `json:"proof,omitempty"`
}

// CredentialSchema describes the claims a credential type carries. The bridge
// ships a small fixed registry; schemas are advisory, not enforced per-claim.
type CredentialSchema struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Claims      []string `json:"claims"`
}

// SubjectID returns the credential subject's id claim, or empty.
func (vc *VerifiableCredential) SubjectID() string {
	if vc == nil || vc.CredentialSubject == nil {
		return ""
	}
	id, _ := vc.CredentialSubject["id"].(string)
	return id
}

// HasType reports whether the credential carries the given type.
func (vc *VerifiableCredential) HasType(t string) bool {
	for _, ct := range vc.Type {
		if ct == t {
			return true
		}
	}
	return false
}

// CheckShape validates the structural constraints a verifier would apply:
// context, id, type, issuer, issuance date, and a credential subject with an
// id. Returns an error naming the first missing piece.
func (vc *VerifiableCredential) CheckShape() error {
	if vc == nil {
		return errors.New("credential is nil")
	}
	if len(vc.Context) == 0 || vc.Context[0] != CredentialContext {
		return errors.New("credential @context must start with the W3C credentials context")
	}
	if vc.ID == "" {
		return errors.New("credential id is required")
	}
	if len(vc.Type) == 0 || vc.Type[0] != "VerifiableCredential" {
		return errors.New("credential type must start with VerifiableCredential")
	}
	if vc.Issuer == "" {
		return errors.New("credential issuer is required")
	}
	if vc.IssuanceDate.IsZero() {
		return errors.New("credential issuanceDate is required")
	}
	if vc.SubjectID() == "" {
		return errors.New("credentialSubject.id is required")
	}
	return nil
}

// Expired reports whether the credential's expiration date has passed.
func (vc *VerifiableCredential) Expired(now time.Time) bool {
	return vc.ExpirationDate != nil && now.After(*vc.ExpirationDate)
}
