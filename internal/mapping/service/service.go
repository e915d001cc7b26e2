package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ssi-migration-bridge/internal/mapping/domain"
	"ssi-migration-bridge/internal/mapping/repository"
	"ssi-migration-bridge/internal/policy/engine"
	"ssi-migration-bridge/internal/translator"
)

// Sentinel errors for the correlator; handler maps them to HTTP codes.
var (
	ErrNotFound     = errors.New("mapping not found")
	ErrConflict     = errors.New("mapping conflict")
	ErrInvalidInput = errors.New("invalid mapping input")
)

// Patch holds the mutable mapping fields an update may change. Nil pointers
// leave the field untouched. The traditional id and primary key are never
// patchable.
type Patch struct {
	Email           *string
	DID             *string
	DIDMethod       *string
	WalletConnected *bool
	Status          *domain.MappingStatus
	FirstName       *string
	LastName        *string
	DisplayName     *string
	Roles           []string
	Attributes      map[string]any
}

// Correlator owns the identity mapping lifecycle: find-or-create, provider
// attachment, DID attachment, wallet attachment, phase transitions, deletion.
// It never retries storage conflicts; that policy belongs to the caller.
type Correlator struct {
	store  repository.Store
	policy engine.Evaluator
	logger *zap.Logger
	now    func() time.Time
}

// NewCorrelator returns a Correlator with the given dependencies. now may be
// nil (defaults to time.Now UTC).
func NewCorrelator(store repository.Store, policy engine.Evaluator, logger *zap.Logger, now func() time.Time) *Correlator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{store: store, policy: policy, logger: logger, now: now}
}

// FindByTraditionalID resolves a mapping by traditional id with two-phase
// provider matching: an exact match on any of the requested providers wins;
// otherwise the provider-attachment policy decides whether the requested
// providers join the record. Real IdPs issue client-specific issuer strings
// that rarely equal the configured provider name, so a provider mismatch on a
// known id is the common case, not an attack signal.
func (c *Correlator) FindByTraditionalID(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error) {
	if traditionalID == "" {
		return nil, fmt.Errorf("%w: traditional id is required", ErrInvalidInput)
	}
	m, err := c.store.GetByTraditionalID(ctx, traditionalID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return c.attachWithPolicy(ctx, m, providers)
}

// attachWithPolicy merges the requested providers into an existing mapping,
// subject to the attachment policy. Every path that joins providers to a
// record someone else resolved (id match, email fallback, idempotent create)
// goes through here, so a tightened policy holds everywhere. A denial surfaces
// as ErrNotFound: the caller learns only that no mapping matched.
func (c *Correlator) attachWithPolicy(ctx context.Context, m *domain.Mapping, providers []string) (*domain.Mapping, error) {
	for _, p := range providers {
		if m.HasProvider(p) {
			return m, nil
		}
	}
	if len(providers) == 0 {
		return m, nil
	}

	result, err := c.policy.EvaluateAttach(ctx, providers, m.Providers)
	if err != nil {
		return nil, err
	}
	if !result.Attach {
		c.logger.Warn("provider attach denied by policy",
			zap.String("traditional_id", m.TraditionalID),
			zap.Strings("requested", providers),
			zap.Strings("existing", m.Providers))
		return nil, ErrNotFound
	}
	if !result.Related {
		c.logger.Info("attaching unrelated provider to existing mapping",
			zap.String("traditional_id", m.TraditionalID),
			zap.Strings("requested", providers),
			zap.Strings("existing", m.Providers))
	}
	return c.attachProviders(ctx, m.TraditionalID, providers)
}

// FindByDID resolves a mapping by its DID.
func (c *Correlator) FindByDID(ctx context.Context, did string) (*domain.Mapping, error) {
	if did == "" {
		return nil, fmt.Errorf("%w: did is required", ErrInvalidInput)
	}
	m, err := c.store.GetByDID(ctx, did)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// FindByEmail resolves a mapping by its email.
func (c *Correlator) FindByEmail(ctx context.Context, email string) (*domain.Mapping, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	m, err := c.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// Create inserts a new mapping. If one already exists for the traditional id,
// the requested providers are merged into it instead of erroring, so create
// is safe to re-run. The merge is subject to the attachment policy.
func (c *Correlator) Create(ctx context.Context, m *domain.Mapping) (*domain.Mapping, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mapping is required", ErrInvalidInput)
	}
	existing, err := c.store.GetByTraditionalID(ctx, m.TraditionalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return c.attachWithPolicy(ctx, existing, m.Providers)
	}

	now := c.now()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.MigrationPhase = domain.DerivePhase(m.DID != "", m.WalletConnected)
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.store.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost a create race. No automatic retry; the caller may re-run
			// the read-then-write sequence once.
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}
	c.logger.Info("mapping created",
		zap.String("mapping_id", m.ID),
		zap.String("traditional_id", m.TraditionalID),
		zap.String("phase", string(m.MigrationPhase)))
	return m, nil
}

// Update applies a patch to the mapping identified by traditional id and
// providers, then re-derives the migration phase. The traditional id and
// primary key cannot change through a patch.
func (c *Correlator) Update(ctx context.Context, traditionalID string, providers []string, p Patch) (*domain.Mapping, error) {
	m, err := c.FindByTraditionalID(ctx, traditionalID, providers)
	if err != nil {
		return nil, err
	}

	if p.Email != nil {
		m.Email = strings.TrimSpace(strings.ToLower(*p.Email))
	}
	if p.DID != nil {
		m.DID = *p.DID
	}
	if p.DIDMethod != nil {
		m.DIDMethod = *p.DIDMethod
	}
	if p.WalletConnected != nil {
		m.WalletConnected = *p.WalletConnected
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.FirstName != nil {
		m.UserDetails.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		m.UserDetails.LastName = *p.LastName
	}
	if p.DisplayName != nil {
		m.UserDetails.DisplayName = *p.DisplayName
	}
	if p.Roles != nil {
		m.UserDetails.Roles = p.Roles
	}
	if p.Attributes != nil {
		m.UserDetails.Attributes = p.Attributes
	}

	m.RecomputePhase()
	return c.persist(ctx, m)
}

// AddDID attaches a DID to the mapping for the traditional id, creating the
// mapping with a placeholder email when none exists yet. Fails with a conflict
// when the DID is already owned by a different mapping. The phase moves to at
// least preparation.
func (c *Correlator) AddDID(ctx context.Context, traditionalID string, providers []string, did, method string) (*domain.Mapping, error) {
	if traditionalID == "" || did == "" {
		return nil, fmt.Errorf("%w: traditional id and did are required", ErrInvalidInput)
	}

	owner, err := c.store.GetByDID(ctx, did)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.TraditionalID != traditionalID {
		return nil, fmt.Errorf("%w: did %s already mapped to another identity", ErrConflict, did)
	}

	m, err := c.store.GetByTraditionalID(ctx, traditionalID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &domain.Mapping{
			TraditionalID: traditionalID,
			Providers:     domain.MergeProviders(nil, providers),
			Email:         placeholderEmail(traditionalID),
			Status:        domain.StatusPending,
		}
		m.DID = did
		m.DIDMethod = method
		m.RecomputePhase()
		return c.Create(ctx, m)
	}

	m.DID = did
	m.DIDMethod = method
	m.Providers = domain.MergeProviders(m.Providers, providers)
	m.RecomputePhase()
	updated, err := c.persist(ctx, m)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: did %s already mapped to another identity", ErrConflict, did)
		}
		return nil, err
	}
	c.logger.Info("did attached",
		zap.String("traditional_id", traditionalID),
		zap.String("did", did),
		zap.String("phase", string(updated.MigrationPhase)))
	return updated, nil
}

// ConnectWallet records a wallet connection on the mapping, creating it when
// absent. The phase advances to hybrid when a DID is already present.
func (c *Correlator) ConnectWallet(ctx context.Context, traditionalID string, providers []string, connectionID string) (*domain.Mapping, error) {
	if traditionalID == "" {
		return nil, fmt.Errorf("%w: traditional id is required", ErrInvalidInput)
	}
	m, err := c.store.GetByTraditionalID(ctx, traditionalID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &domain.Mapping{
			TraditionalID: traditionalID,
			Providers:     domain.MergeProviders(nil, providers),
			Email:         placeholderEmail(traditionalID),
			Status:        domain.StatusPending,
		}
		m.WalletConnected = true
		m.WalletConnectionID = connectionID
		m.RecomputePhase()
		return c.Create(ctx, m)
	}

	m.WalletConnected = true
	m.WalletConnectionID = connectionID
	m.Providers = domain.MergeProviders(m.Providers, providers)
	m.RecomputePhase()
	updated, err := c.persist(ctx, m)
	if err != nil {
		return nil, err
	}
	c.logger.Info("wallet connected",
		zap.String("traditional_id", traditionalID),
		zap.String("connection_id", connectionID),
		zap.String("phase", string(updated.MigrationPhase)))
	return updated, nil
}

// UpdateMigrationPhase sets the phase explicitly. This is the administrative
// override used for claiming and full_ssi, which are never derived from state.
func (c *Correlator) UpdateMigrationPhase(ctx context.Context, traditionalID string, providers []string, phase domain.MigrationPhase) (*domain.Mapping, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: unknown migration phase %q", ErrInvalidInput, phase)
	}
	m, err := c.FindByTraditionalID(ctx, traditionalID, providers)
	if err != nil {
		return nil, err
	}
	m.MigrationPhase = phase
	return c.persist(ctx, m)
}

// Delete removes the given providers from the mapping. When they are the only
// providers on the record, the whole mapping is deleted; otherwise the record
// survives with the remaining providers. Returns true when the record was
// fully removed.
func (c *Correlator) Delete(ctx context.Context, traditionalID string, providers []string) (bool, error) {
	m, err := c.store.GetByTraditionalID(ctx, traditionalID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, ErrNotFound
	}

	remaining := 0
	for _, p := range m.Providers {
		requested := false
		for _, rp := range providers {
			if p == rp {
				requested = true
				break
			}
		}
		if !requested {
			remaining++
		}
	}
	if remaining == 0 {
		deleted, err := c.store.Delete(ctx, traditionalID)
		if err != nil {
			return false, err
		}
		if deleted {
			c.logger.Info("mapping deleted", zap.String("traditional_id", traditionalID))
		}
		return deleted, nil
	}

	if _, err := c.store.RemoveProviders(ctx, traditionalID, providers); err != nil {
		return false, err
	}
	c.logger.Info("providers removed from mapping",
		zap.String("traditional_id", traditionalID),
		zap.Strings("providers", providers))
	return false, nil
}

// FindOrCreate is the primary entry point from authentication flows: resolve
// by traditional id, fall back to email, else create a fresh mapping from the
// normalized identity.
func (c *Correlator) FindOrCreate(ctx context.Context, identity *translator.NormalizedIdentity, providers []string) (*domain.Mapping, error) {
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("%w: normalized identity is required", ErrInvalidInput)
	}

	m, err := c.FindByTraditionalID(ctx, identity.ID, providers)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if identity.Email != "" {
		byEmail, err := c.store.GetByEmail(ctx, strings.ToLower(identity.Email))
		if err != nil {
			return nil, err
		}
		if byEmail != nil {
			return c.attachWithPolicy(ctx, byEmail, providers)
		}
	}

	email := strings.TrimSpace(strings.ToLower(identity.Email))
	if email == "" {
		email = placeholderEmail(identity.ID)
	}
	return c.Create(ctx, &domain.Mapping{
		TraditionalID: identity.ID,
		Providers:     domain.MergeProviders(nil, providers),
		Email:         email,
		Status:        domain.StatusActive,
		UserDetails: domain.UserDetails{
			FirstName:   identity.FirstName,
			LastName:    identity.LastName,
			DisplayName: identity.DisplayName,
			Roles:       identity.Roles,
			Attributes:  identity.Attributes,
		},
	})
}

// Find lists mappings matching the filter with limit/offset paging.
func (c *Correlator) Find(ctx context.Context, f repository.Filter, limit, offset int) ([]*domain.Mapping, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return c.store.List(ctx, f, limit, offset)
}

// CountByPhase returns the number of mappings in each migration phase.
func (c *Correlator) CountByPhase(ctx context.Context) (map[domain.MigrationPhase]int, error) {
	return c.store.CountByPhase(ctx)
}

// attachProviders merges providers into the mapping through the store's
// atomic set-union, so concurrent merges cannot lose updates.
func (c *Correlator) attachProviders(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error) {
	m, err := c.store.AddProviders(ctx, traditionalID, providers)
	if err != nil {
		if errors.Is(err, repository.ErrNoRow) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// persist writes the mapping back with a fresh updatedAt.
func (c *Correlator) persist(ctx context.Context, m *domain.Mapping) (*domain.Mapping, error) {
	m.UpdatedAt = c.now()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.store.Update(ctx, m); err != nil {
		if errors.Is(err, repository.ErrNoRow) {
			return nil, ErrNotFound
		}
		if errors.Is(err, repository.ErrDuplicateKey) {
			// The patched DID or email is already owned by another mapping.
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}
	return m, nil
}

// placeholderEmail synthesizes a unique, obviously-fake email for mappings
// created from flows that carry no email claim (DID attach, wallet connect).
func placeholderEmail(traditionalID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, traditionalID)
	return safe + "@placeholder.invalid"
}
