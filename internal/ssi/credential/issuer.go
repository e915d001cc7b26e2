// Package credential simulates the external credential issuer: it mints,
// persists, verifies, and lists verifiable credentials, with proofs produced
// by the pluggable signer capability.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ssi-migration-bridge/internal/security"
	"ssi-migration-bridge/internal/ssi/domain"
	"ssi-migration-bridge/internal/ssi/store"
)

// ErrUnknownSchema is returned when no schema exists for a credential type.
var ErrUnknownSchema = errors.New("unknown credential schema")

// VerificationResult is the outcome of credential verification. Error is a
// human-readable reason when Verified is false.
type VerificationResult struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

// Issuer is the credential collaborator contract.
type Issuer interface {
	Create(ctx context.Context, credType, subjectDID string, claims map[string]any) (*domain.VerifiableCredential, error)
	Verify(ctx context.Context, vc *domain.VerifiableCredential) VerificationResult
	BySubject(ctx context.Context, subjectDID string) ([]domain.VerifiableCredential, error)
	Schemas() []domain.CredentialSchema
	Schema(credType string) (domain.CredentialSchema, error)
}

// schemas is the fixed registry of credential types the bridge issues.
// Advisory: claim names document the expected shape, unknown claims pass through.
var schemas = []domain.CredentialSchema{
	{
		Type:        "IdentityCredential",
		Name:        "Identity Credential",
		Description: "Core identity claims migrated from the traditional IdP",
		Claims:      []string{"email", "firstName", "lastName", "displayName", "roles"},
	},
	{
		Type:        "EmailCredential",
		Name:        "Email Credential",
		Description: "Verified email address",
		Claims:      []string{"email"},
	},
	{
		Type:        "RoleCredential",
		Name:        "Role Credential",
		Description: "Roles held in the traditional system",
		Claims:      []string{"roles"},
	},
}

// Simulator is an Issuer backed by the document store and a signer.
type Simulator struct {
	docs      store.DocumentStore
	signer    security.CredentialSigner
	issuerDID string
	lifetime  time.Duration
	now       func() time.Time
}

// NewSimulator returns an issuer simulator minting credentials as issuerDID.
// lifetime <= 0 defaults to one year; now may be nil.
func NewSimulator(docs store.DocumentStore, signer security.CredentialSigner, issuerDID string, lifetime time.Duration, now func() time.Time) *Simulator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if lifetime <= 0 {
		lifetime = 365 * 24 * time.Hour
	}
	return &Simulator{docs: docs, signer: signer, issuerDID: issuerDID, lifetime: lifetime, now: now}
}

// Create mints, signs, and persists a credential of the given type.
func (s *Simulator) Create(ctx context.Context, credType, subjectDID string, claims map[string]any) (*domain.VerifiableCredential, error) {
	if subjectDID == "" {
		return nil, errors.New("subject did is required")
	}
	if _, err := s.Schema(credType); err != nil {
		return nil, err
	}

	now := s.now()
	expiry := now.Add(s.lifetime)
	subject := map[string]any{"id": subjectDID}
	for k, v := range claims {
		subject[k] = v
	}

	vc := &domain.VerifiableCredential{
		Context:           []string{domain.CredentialContext},
		ID:                "urn:uuid:" + uuid.New().String(),
		Type:              []string{"VerifiableCredential", credType},
		Issuer:            s.issuerDID,
		IssuanceDate:      now,
		ExpirationDate:    &expiry,
		CredentialSubject: subject,
	}
	if err := vc.CheckShape(); err != nil {
		return nil, fmt.Errorf("minted credential failed shape check: %w", err)
	}

	payload, err := proofPayload(vc)
	if err != nil {
		return nil, err
	}
	proofValue, err := s.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	vc.Proof = &domain.Proof{
		Type:               s.signer.Type(),
		Created:            now,
		VerificationMethod: s.issuerDID + "#key-1",
		ProofPurpose:       "assertionMethod",
		ProofValue:         proofValue,
	}

	stored, err := json.Marshal(vc)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	if err := s.docs.Put(ctx, &store.Document{
		Kind:    store.KindCredential,
		ID:      vc.ID,
		OwnerID: s.issuerDID,
		Subject: subjectDID,
		Payload: stored,
	}); err != nil {
		return nil, err
	}
	return vc, nil
}

// Verify checks credential shape, expiry, and proof. It never returns an
// error: verification failure is a result, not an infrastructure fault.
func (s *Simulator) Verify(_ context.Context, vc *domain.VerifiableCredential) VerificationResult {
	if vc == nil {
		return VerificationResult{Error: "credential is nil"}
	}
	if err := vc.CheckShape(); err != nil {
		return VerificationResult{Error: err.Error()}
	}
	if vc.Expired(s.now()) {
		return VerificationResult{Error: "credential is expired"}
	}
	if vc.Proof == nil || vc.Proof.ProofValue == "" {
		return VerificationResult{Error: "credential has no proof"}
	}
	payload, err := proofPayload(vc)
	if err != nil {
		return VerificationResult{Error: err.Error()}
	}
	if !s.signer.Verify(payload, vc.Proof.ProofValue) {
		return VerificationResult{Error: "proof verification failed"}
	}
	return VerificationResult{Verified: true}
}

// BySubject lists every credential held by the subject DID.
func (s *Simulator) BySubject(ctx context.Context, subjectDID string) ([]domain.VerifiableCredential, error) {
	docs, err := s.docs.ListBySubject(ctx, store.KindCredential, subjectDID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VerifiableCredential, 0, len(docs))
	for _, d := range docs {
		var vc domain.VerifiableCredential
		if err := json.Unmarshal(d.Payload, &vc); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", d.ID, err)
		}
		out = append(out, vc)
	}
	return out, nil
}

// Schemas returns the credential schema registry.
func (s *Simulator) Schemas() []domain.CredentialSchema {
	out := make([]domain.CredentialSchema, len(schemas))
	copy(out, schemas)
	return out
}

// Schema returns the schema for the credential type, or ErrUnknownSchema.
func (s *Simulator) Schema(credType string) (domain.CredentialSchema, error) {
	for _, sc := range schemas {
		if sc.Type == credType {
			return sc, nil
		}
	}
	return domain.CredentialSchema{}, fmt.Errorf("%w: %s", ErrUnknownSchema, credType)
}

// proofPayload is the canonical byte form the proof covers: the credential
// without its proof.
func proofPayload(vc *domain.VerifiableCredential) ([]byte, error) {
	unsigned := *vc
	unsigned.Proof = nil
	payload, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("encode credential for signing: %w", err)
	}
	return payload, nil
}
