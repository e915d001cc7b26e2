package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"ssi-migration-bridge/internal/mapping/domain"
	"ssi-migration-bridge/internal/mapping/repository"
	"ssi-migration-bridge/internal/policy/engine"
	"ssi-migration-bridge/internal/translator"
)

// fakeStore is an in-memory repository.Store keyed by traditional id. It
// copies mappings on read and write the way a real database round-trip would.
type fakeStore struct {
	byID map[string]*domain.Mapping
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]*domain.Mapping{}}
}

func cloneMapping(m *domain.Mapping) *domain.Mapping {
	cp := *m
	cp.Providers = append([]string(nil), m.Providers...)
	cp.UserDetails.Roles = append([]string(nil), m.UserDetails.Roles...)
	return &cp
}

func (s *fakeStore) GetByTraditionalID(_ context.Context, id string) (*domain.Mapping, error) {
	if m, ok := s.byID[id]; ok {
		return cloneMapping(m), nil
	}
	return nil, nil
}

func (s *fakeStore) GetByDID(_ context.Context, did string) (*domain.Mapping, error) {
	for _, m := range s.byID {
		if m.DID != "" && m.DID == did {
			return cloneMapping(m), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (*domain.Mapping, error) {
	for _, m := range s.byID {
		if strings.EqualFold(m.Email, email) {
			return cloneMapping(m), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Create(_ context.Context, m *domain.Mapping) error {
	if _, ok := s.byID[m.TraditionalID]; ok {
		return repository.ErrDuplicateKey
	}
	for _, other := range s.byID {
		if m.DID != "" && other.DID == m.DID {
			return repository.ErrDuplicateKey
		}
	}
	s.byID[m.TraditionalID] = cloneMapping(m)
	return nil
}

func (s *fakeStore) Update(_ context.Context, m *domain.Mapping) error {
	if _, ok := s.byID[m.TraditionalID]; !ok {
		return repository.ErrNoRow
	}
	for _, other := range s.byID {
		if m.DID != "" && other.DID == m.DID && other.TraditionalID != m.TraditionalID {
			return repository.ErrDuplicateKey
		}
	}
	s.byID[m.TraditionalID] = cloneMapping(m)
	return nil
}

func (s *fakeStore) AddProviders(_ context.Context, id string, providers []string) (*domain.Mapping, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNoRow
	}
	m.Providers = domain.MergeProviders(m.Providers, providers)
	return cloneMapping(m), nil
}

func (s *fakeStore) RemoveProviders(_ context.Context, id string, providers []string) (*domain.Mapping, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNoRow
	}
	var kept []string
	for _, p := range m.Providers {
		drop := false
		for _, rp := range providers {
			if p == rp {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, p)
		}
	}
	m.Providers = kept
	return cloneMapping(m), nil
}

func (s *fakeStore) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	delete(s.byID, id)
	return true, nil
}

func (s *fakeStore) List(_ context.Context, f repository.Filter, limit, offset int) ([]*domain.Mapping, error) {
	var out []*domain.Mapping
	for _, m := range s.byID {
		if f.Phase != "" && m.MigrationPhase != f.Phase {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		out = append(out, cloneMapping(m))
	}
	return out, nil
}

func (s *fakeStore) CountByPhase(_ context.Context) (map[domain.MigrationPhase]int, error) {
	out := map[domain.MigrationPhase]int{}
	for _, m := range s.byID {
		out[m.MigrationPhase]++
	}
	return out, nil
}

// fakePolicy is a canned provider-attachment decision.
type fakePolicy struct {
	result engine.AttachResult
	err    error
}

func (p fakePolicy) EvaluateAttach(context.Context, []string, []string) (engine.AttachResult, error) {
	return p.result, p.err
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestCorrelator(store repository.Store, policy engine.Evaluator) *Correlator {
	if policy == nil {
		policy = fakePolicy{result: engine.AttachResult{Related: true, Attach: true}}
	}
	return NewCorrelator(store, policy, zap.NewNop(), fixedNow)
}

func seedMapping(store *fakeStore, m *domain.Mapping) {
	if m.Status == "" {
		m.Status = domain.StatusActive
	}
	if m.MigrationPhase == "" {
		m.MigrationPhase = domain.PhaseTraditional
	}
	store.byID[m.TraditionalID] = m
}

func TestFindOrCreateCreatesFreshMapping(t *testing.T) {
	store := newFakeStore()
	c := newTestCorrelator(store, nil)

	identity := &translator.NormalizedIdentity{
		ID:          "alice@corp.example.com",
		Email:       "Alice@corp.example.com",
		DisplayName: "Alice Nguyen",
		Roles:       []string{"admin"},
	}
	m, err := c.FindOrCreate(context.Background(), identity, []string{"corp-saml"})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if m.ID == "" {
		t.Errorf("mapping id not assigned")
	}
	if m.Email != "alice@corp.example.com" {
		t.Errorf("Email = %q, want lowercased", m.Email)
	}
	if m.MigrationPhase != domain.PhaseTraditional {
		t.Errorf("phase = %q, want traditional for a DID-less mapping", m.MigrationPhase)
	}
	if !m.HasProvider("corp-saml") {
		t.Errorf("providers = %v", m.Providers)
	}
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	c := newTestCorrelator(store, nil)
	identity := &translator.NormalizedIdentity{ID: "alice", Email: "alice@example.com"}

	first, err := c.FindOrCreate(context.Background(), identity, []string{"corp-saml"})
	if err != nil {
		t.Fatalf("first FindOrCreate: %v", err)
	}
	second, err := c.FindOrCreate(context.Background(), identity, []string{"corp-saml"})
	if err != nil {
		t.Fatalf("second FindOrCreate: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call created a new mapping: %q vs %q", first.ID, second.ID)
	}
	if len(store.byID) != 1 {
		t.Errorf("store holds %d mappings, want 1", len(store.byID))
	}
}

func TestFindOrCreateFallsBackToEmail(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, nil)

	// Same human arriving with a different subject identifier but a known email.
	m, err := c.FindOrCreate(context.Background(), &translator.NormalizedIdentity{
		ID:    "oidc|12345",
		Email: "alice@example.com",
	}, []string{"corp-oidc"})
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if m.TraditionalID != "alice" {
		t.Errorf("resolved mapping %q, want existing record by email", m.TraditionalID)
	}
	if !m.HasProvider("corp-oidc") {
		t.Errorf("providers = %v, want corp-oidc attached", m.Providers)
	}
}

func TestFindOrCreateDeniedByPolicy(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, fakePolicy{result: engine.AttachResult{}})

	_, err := c.FindOrCreate(context.Background(), &translator.NormalizedIdentity{
		ID:    "alice",
		Email: "alice@example.com",
	}, []string{"rogue-idp"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound when policy denies attach", err)
	}
	if len(store.byID) != 1 {
		t.Errorf("store holds %d mappings, denial must not create a new one", len(store.byID))
	}
	if got := store.byID["alice"].Providers; len(got) != 1 {
		t.Errorf("providers mutated despite policy denial: %v", got)
	}
}

func TestFindOrCreateEmailFallbackDeniedByPolicy(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, fakePolicy{result: engine.AttachResult{}})

	// Unknown subject but a known email: the fallback attach is still subject
	// to the policy decision.
	_, err := c.FindOrCreate(context.Background(), &translator.NormalizedIdentity{
		ID:    "oidc|999",
		Email: "alice@example.com",
	}, []string{"rogue-idp"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound when policy denies the email fallback", err)
	}
	if got := store.byID["alice"].Providers; len(got) != 1 {
		t.Errorf("providers mutated despite policy denial: %v", got)
	}
}

func TestFindByTraditionalIDExactProviderMatch(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	// Policy that would deny everything; an exact match must not consult it.
	c := newTestCorrelator(store, fakePolicy{result: engine.AttachResult{}})

	m, err := c.FindByTraditionalID(context.Background(), "alice", []string{"corp-saml"})
	if err != nil {
		t.Fatalf("FindByTraditionalID: %v", err)
	}
	if len(m.Providers) != 1 {
		t.Errorf("providers = %v, exact match must not attach", m.Providers)
	}
}

func TestFindByTraditionalIDAttachesPerPolicy(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, fakePolicy{result: engine.AttachResult{Related: true, Attach: true}})

	m, err := c.FindByTraditionalID(context.Background(), "alice", []string{"protocol-bridge-saml"})
	if err != nil {
		t.Fatalf("FindByTraditionalID: %v", err)
	}
	if !m.HasProvider("protocol-bridge-saml") {
		t.Errorf("providers = %v, want related provider attached", m.Providers)
	}
}

func TestFindByTraditionalIDDeniedByPolicy(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, fakePolicy{result: engine.AttachResult{Related: false, Attach: false}})

	if _, err := c.FindByTraditionalID(context.Background(), "alice", []string{"rogue-idp"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound when policy denies attach", err)
	}
	if len(store.byID["alice"].Providers) != 1 {
		t.Errorf("providers mutated despite policy denial: %v", store.byID["alice"].Providers)
	}
}

func TestCreateMergesIntoExisting(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, nil)

	m, err := c.Create(context.Background(), &domain.Mapping{
		TraditionalID: "alice",
		Providers:     []string{"corp-oidc"},
		Email:         "alice@example.com",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID != "m1" {
		t.Errorf("created a second mapping for the same traditional id")
	}
	if !m.HasProvider("corp-saml") || !m.HasProvider("corp-oidc") {
		t.Errorf("providers = %v", m.Providers)
	}
}

func TestUpdateConflictOnDuplicateDID(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
		DID:           "did:key:z6MkAlice",
	})
	seedMapping(store, &domain.Mapping{
		ID:            "m2",
		TraditionalID: "bob",
		Providers:     []string{"corp-saml"},
		Email:         "bob@example.com",
	})
	c := newTestCorrelator(store, nil)

	// The store rejects the write with a duplicate-key error; the caller must
	// see a conflict, not an opaque failure.
	did := "did:key:z6MkAlice"
	_, err := c.Update(context.Background(), "bob", []string{"corp-saml"}, Patch{DID: &did})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict when the DID belongs to another mapping", err)
	}
}

func TestAddDIDConflictOnForeignDID(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml"},
		Email:         "alice@example.com",
		DID:           "did:key:z6MkAlice",
	})
	c := newTestCorrelator(store, nil)

	_, err := c.AddDID(context.Background(), "bob", []string{"corp-saml"}, "did:key:z6MkAlice", "key")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict for a DID owned by another mapping", err)
	}
}

func TestAddDIDCreatesPlaceholderMapping(t *testing.T) {
	store := newFakeStore()
	c := newTestCorrelator(store, nil)

	m, err := c.AddDID(context.Background(), "carol", []string{"corp-oidc"}, "did:key:z6MkCarol", "key")
	if err != nil {
		t.Fatalf("AddDID: %v", err)
	}
	if m.MigrationPhase != domain.PhasePreparation {
		t.Errorf("phase = %q, want preparation after DID attach", m.MigrationPhase)
	}
	if !strings.HasSuffix(m.Email, "@placeholder.invalid") {
		t.Errorf("Email = %q, want placeholder", m.Email)
	}
	if m.DIDMethod != "key" {
		t.Errorf("DIDMethod = %q", m.DIDMethod)
	}
}

func TestAddDIDIsIdempotent(t *testing.T) {
	store := newFakeStore()
	c := newTestCorrelator(store, nil)

	if _, err := c.AddDID(context.Background(), "carol", nil, "did:key:z6MkCarol", "key"); err != nil {
		t.Fatalf("first AddDID: %v", err)
	}
	m, err := c.AddDID(context.Background(), "carol", nil, "did:key:z6MkCarol", "key")
	if err != nil {
		t.Fatalf("second AddDID: %v", err)
	}
	if m.DID != "did:key:z6MkCarol" || m.MigrationPhase != domain.PhasePreparation {
		t.Errorf("mapping after re-run = %q %q", m.DID, m.MigrationPhase)
	}
}

func TestConnectWalletAdvancesToHybrid(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:             "m1",
		TraditionalID:  "alice",
		Providers:      []string{"corp-saml"},
		Email:          "alice@example.com",
		DID:            "did:key:z6MkAlice",
		MigrationPhase: domain.PhasePreparation,
	})
	c := newTestCorrelator(store, nil)

	m, err := c.ConnectWallet(context.Background(), "alice", []string{"corp-saml"}, "conn-1")
	if err != nil {
		t.Fatalf("ConnectWallet: %v", err)
	}
	if m.MigrationPhase != domain.PhaseHybrid {
		t.Errorf("phase = %q, want hybrid once DID and wallet are both present", m.MigrationPhase)
	}
	if !m.WalletConnected || m.WalletConnectionID != "conn-1" {
		t.Errorf("wallet state = %v %q", m.WalletConnected, m.WalletConnectionID)
	}
}

func TestConnectWalletWithoutDIDStaysTraditional(t *testing.T) {
	store := newFakeStore()
	c := newTestCorrelator(store, nil)

	m, err := c.ConnectWallet(context.Background(), "dave", []string{"corp-saml"}, "conn-2")
	if err != nil {
		t.Fatalf("ConnectWallet: %v", err)
	}
	if m.MigrationPhase != domain.PhaseTraditional {
		t.Errorf("phase = %q, wallet without DID must not advance the phase", m.MigrationPhase)
	}
}

func TestUpdateMigrationPhaseAdminOverride(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:              "m1",
		TraditionalID:   "alice",
		Providers:       []string{"corp-saml"},
		Email:           "alice@example.com",
		DID:             "did:key:z6MkAlice",
		WalletConnected: true,
		MigrationPhase:  domain.PhaseHybrid,
	})
	c := newTestCorrelator(store, nil)

	m, err := c.UpdateMigrationPhase(context.Background(), "alice", []string{"corp-saml"}, domain.PhaseClaiming)
	if err != nil {
		t.Fatalf("UpdateMigrationPhase: %v", err)
	}
	if m.MigrationPhase != domain.PhaseClaiming {
		t.Errorf("phase = %q", m.MigrationPhase)
	}

	// A subsequent patch re-derives the phase but must not lower claiming.
	connected := true
	m, err = c.Update(context.Background(), "alice", []string{"corp-saml"}, Patch{WalletConnected: &connected})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if m.MigrationPhase != domain.PhaseClaiming {
		t.Errorf("phase = %q, re-derivation must not lower an admin phase", m.MigrationPhase)
	}
}

func TestUpdateMigrationPhaseRejectsUnknownPhase(t *testing.T) {
	c := newTestCorrelator(newFakeStore(), nil)
	if _, err := c.UpdateMigrationPhase(context.Background(), "alice", nil, "quantum"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDeleteStripsProvidersOrRemoves(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{
		ID:            "m1",
		TraditionalID: "alice",
		Providers:     []string{"corp-saml", "corp-oidc"},
		Email:         "alice@example.com",
	})
	c := newTestCorrelator(store, nil)

	removed, err := c.Delete(context.Background(), "alice", []string{"corp-saml"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed {
		t.Errorf("record deleted while another provider remained")
	}
	if got := store.byID["alice"].Providers; len(got) != 1 || got[0] != "corp-oidc" {
		t.Errorf("providers = %v", got)
	}

	removed, err = c.Delete(context.Background(), "alice", []string{"corp-oidc"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Errorf("last provider removed but record survived")
	}
	if _, ok := store.byID["alice"]; ok {
		t.Errorf("mapping still present after full delete")
	}
}

func TestDeleteMissingMapping(t *testing.T) {
	c := newTestCorrelator(newFakeStore(), nil)
	if _, err := c.Delete(context.Background(), "ghost", []string{"corp-saml"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCountByPhase(t *testing.T) {
	store := newFakeStore()
	seedMapping(store, &domain.Mapping{ID: "m1", TraditionalID: "a", Email: "a@x.com", MigrationPhase: domain.PhaseTraditional})
	seedMapping(store, &domain.Mapping{ID: "m2", TraditionalID: "b", Email: "b@x.com", MigrationPhase: domain.PhaseHybrid})
	seedMapping(store, &domain.Mapping{ID: "m3", TraditionalID: "c", Email: "c@x.com", MigrationPhase: domain.PhaseHybrid})
	c := newTestCorrelator(store, nil)

	counts, err := c.CountByPhase(context.Background())
	if err != nil {
		t.Fatalf("CountByPhase: %v", err)
	}
	if counts[domain.PhaseHybrid] != 2 || counts[domain.PhaseTraditional] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
