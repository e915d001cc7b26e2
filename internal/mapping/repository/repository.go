package repository

import (
	"context"
	"errors"

	"ssi-migration-bridge/internal/mapping/domain"
)

// ErrDuplicateKey is returned when an insert or update violates a unique
// index (traditional id, DID, or active email).
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNoRow is returned by mutations that matched no mapping.
var ErrNoRow = errors.New("no matching mapping")

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Phase    domain.MigrationPhase
	Status   domain.MappingStatus
	Provider string
	HasDID   *bool
}

// Store defines persistence for identity mappings. Lookups return (nil, nil)
// for a missing row; errors are database failures only.
type Store interface {
	GetByTraditionalID(ctx context.Context, traditionalID string) (*domain.Mapping, error)
	GetByDID(ctx context.Context, did string) (*domain.Mapping, error)
	GetByEmail(ctx context.Context, email string) (*domain.Mapping, error)
	Create(ctx context.Context, m *domain.Mapping) error
	Update(ctx context.Context, m *domain.Mapping) error
	// AddProviders appends the given providers to the mapping's provider set
	// as a single atomic statement (set-union at the storage layer, so
	// concurrent merges cannot lose updates).
	AddProviders(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error)
	RemoveProviders(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error)
	Delete(ctx context.Context, traditionalID string) (bool, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*domain.Mapping, error)
	CountByPhase(ctx context.Context) (map[domain.MigrationPhase]int, error)
}
