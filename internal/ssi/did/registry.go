// Package did simulates the external DID registry. Identifiers are minted
// from random key material; documents live in the collaborator document
// store. The registry stands in for a real VDR and is swappable behind the
// Registry interface.
package did

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"

	"ssi-migration-bridge/internal/ssi/domain"
	"ssi-migration-bridge/internal/ssi/store"
)

// DID document context URIs.
const (
	didContext     = "https://www.w3.org/ns/did/v1"
	ed25519Context = "https://w3id.org/security/suites/ed25519-2020/v1"
)

// ErrNotFound is returned when a DID does not resolve.
var ErrNotFound = errors.New("did not found")

// CreateOptions tunes document creation. ServiceProperties, when set, are
// recorded on an IdentityService endpoint so protocol translation can recover
// profile claims from the document alone.
type CreateOptions struct {
	ServiceProperties map[string]any
}

// Registry is the DID collaborator contract.
type Registry interface {
	Create(ctx context.Context, ownerID, method string, opts *CreateOptions) (string, *domain.DIDDocument, error)
	Resolve(ctx context.Context, did string) (*domain.DIDDocument, error)
	Update(ctx context.Context, did string, doc *domain.DIDDocument) (*domain.DIDDocument, error)
	Deactivate(ctx context.Context, did string) (bool, error)
	Verify(ctx context.Context, did string) (bool, error)
}

// Simulator is a Registry backed by the document store.
type Simulator struct {
	docs store.DocumentStore
	now  func() time.Time
}

// NewSimulator returns a registry simulator. now may be nil.
func NewSimulator(docs store.DocumentStore, now func() time.Time) *Simulator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Simulator{docs: docs, now: now}
}

// Create mints a new DID under the given method and persists its document.
func (s *Simulator) Create(ctx context.Context, ownerID, method string, opts *CreateOptions) (string, *domain.DIDDocument, error) {
	if method == "" {
		method = "key"
	}
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return "", nil, fmt.Errorf("generate did material: %w", err)
	}
	// z prefix marks base58btc, matching multibase encoding of key DIDs.
	encoded := "z" + base58.Encode(material)
	did := fmt.Sprintf("did:%s:%s", method, encoded)

	doc := &domain.DIDDocument{
		Context: []string{didContext, ed25519Context},
		ID:      did,
		VerificationMethod: []domain.VerificationMethod{{
			ID:                 did + "#key-1",
			Type:               "Ed25519VerificationKey2020",
			Controller:         did,
			PublicKeyMultibase: encoded,
		}},
		Authentication: []string{did + "#key-1"},
	}
	if opts != nil && len(opts.ServiceProperties) > 0 {
		doc.Service = append(doc.Service, domain.ServiceEndpoint{
			ID:         did + "#identity",
			Type:       "IdentityService",
			Properties: opts.ServiceProperties,
		})
	}

	if err := s.put(ctx, ownerID, doc); err != nil {
		return "", nil, err
	}
	return did, doc, nil
}

// Resolve returns the document for the DID, or ErrNotFound.
func (s *Simulator) Resolve(ctx context.Context, did string) (*domain.DIDDocument, error) {
	rec, err := s.docs.Get(ctx, store.KindDID, did)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc domain.DIDDocument
	if err := json.Unmarshal(rec.Payload, &doc); err != nil {
		return nil, fmt.Errorf("decode did document: %w", err)
	}
	return &doc, nil
}

// Update replaces the stored document for the DID. The document id cannot change.
func (s *Simulator) Update(ctx context.Context, did string, doc *domain.DIDDocument) (*domain.DIDDocument, error) {
	if doc == nil || doc.ID != did {
		return nil, errors.New("document id must match the did being updated")
	}
	existing, err := s.docs.Get(ctx, store.KindDID, did)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, existing.OwnerID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Deactivate marks the DID deactivated. Deactivated DIDs still resolve, but
// fail Verify.
func (s *Simulator) Deactivate(ctx context.Context, did string) (bool, error) {
	doc, err := s.Resolve(ctx, did)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	doc.Deactivated = true
	if _, err := s.Update(ctx, did, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Verify reports whether the DID resolves to an active document.
func (s *Simulator) Verify(ctx context.Context, did string) (bool, error) {
	doc, err := s.Resolve(ctx, did)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !doc.Deactivated, nil
}

func (s *Simulator) put(ctx context.Context, ownerID string, doc *domain.DIDDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode did document: %w", err)
	}
	return s.docs.Put(ctx, &store.Document{
		Kind:    store.KindDID,
		ID:      doc.ID,
		OwnerID: ownerID,
		Subject: doc.ID,
		Payload: payload,
	})
}
