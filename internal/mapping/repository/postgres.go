package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ssi-migration-bridge/internal/mapping/domain"
)

const mappingColumns = `id, traditional_id, providers, email, password_hash, did, did_method,
	wallet_connected, wallet_connection_id, migration_phase, status,
	first_name, last_name, display_name, username, roles, attributes, created_at, updated_at`

// PostgresStore persists identity mappings in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a mapping store that uses the given pool for persistence.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetByTraditionalID returns the mapping for the traditional id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (s *PostgresStore) GetByTraditionalID(ctx context.Context, traditionalID string) (*domain.Mapping, error) {
	q := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE traditional_id = $1`
	return s.queryOne(ctx, q, traditionalID)
}

// GetByDID returns the mapping owning the DID, or nil if not found.
func (s *PostgresStore) GetByDID(ctx context.Context, did string) (*domain.Mapping, error) {
	q := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE did = $1`
	return s.queryOne(ctx, q, did)
}

// GetByEmail returns the active mapping with the email, or nil if not found.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*domain.Mapping, error) {
	q := `SELECT ` + mappingColumns + ` FROM identity_mappings WHERE email = $1 AND status = 'active'`
	return s.queryOne(ctx, q, email)
}

// Create persists the mapping. The mapping must have ID set. Unique-index
// violations (traditional id, DID, active email) surface as ErrDuplicateKey.
func (s *PostgresStore) Create(ctx context.Context, m *domain.Mapping) error {
	attrs, err := marshalAttributes(m.UserDetails.Attributes)
	if err != nil {
		return err
	}
	q := `INSERT INTO identity_mappings (` + mappingColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err = s.pool.Exec(ctx, q,
		m.ID, m.TraditionalID, m.Providers, m.Email,
		nullable(m.PasswordHash), nullable(m.DID), nullable(m.DIDMethod),
		m.WalletConnected, nullable(m.WalletConnectionID),
		string(m.MigrationPhase), string(m.Status),
		m.UserDetails.FirstName, m.UserDetails.LastName, m.UserDetails.DisplayName,
		m.UserDetails.Username, m.UserDetails.Roles, attrs,
		m.CreatedAt, m.UpdatedAt,
	)
	return mapPgError(err)
}

// Update rewrites all mutable columns of the mapping identified by ID.
// traditional_id is immutable and not part of the SET list. Returns ErrNoRow
// if no mapping matches.
func (s *PostgresStore) Update(ctx context.Context, m *domain.Mapping) error {
	attrs, err := marshalAttributes(m.UserDetails.Attributes)
	if err != nil {
		return err
	}
	q := `UPDATE identity_mappings SET
		providers = $2, email = $3, password_hash = $4, did = $5, did_method = $6,
		wallet_connected = $7, wallet_connection_id = $8, migration_phase = $9, status = $10,
		first_name = $11, last_name = $12, display_name = $13, username = $14,
		roles = $15, attributes = $16, updated_at = $17
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q,
		m.ID, m.Providers, m.Email,
		nullable(m.PasswordHash), nullable(m.DID), nullable(m.DIDMethod),
		m.WalletConnected, nullable(m.WalletConnectionID),
		string(m.MigrationPhase), string(m.Status),
		m.UserDetails.FirstName, m.UserDetails.LastName, m.UserDetails.DisplayName,
		m.UserDetails.Username, m.UserDetails.Roles, attrs, m.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRow
	}
	return nil
}

// AddProviders appends providers not already present, in one statement, and
// returns the updated mapping. Returns ErrNoRow if no mapping matches.
func (s *PostgresStore) AddProviders(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error) {
	q := `UPDATE identity_mappings
		SET providers = providers || (
			SELECT COALESCE(array_agg(np), '{}'::text[])
			FROM unnest($2::text[]) AS np
			WHERE NOT np = ANY(providers)
		), updated_at = now()
		WHERE traditional_id = $1
		RETURNING ` + mappingColumns
	m, err := s.queryOne(ctx, q, traditionalID, providers)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoRow
	}
	return m, nil
}

// RemoveProviders strips the given providers from the mapping's provider set
// and returns the updated mapping. Returns ErrNoRow if no mapping matches.
func (s *PostgresStore) RemoveProviders(ctx context.Context, traditionalID string, providers []string) (*domain.Mapping, error) {
	q := `UPDATE identity_mappings
		SET providers = (
			SELECT COALESCE(array_agg(p), '{}'::text[])
			FROM unnest(providers) AS p
			WHERE NOT p = ANY($2::text[])
		), updated_at = now()
		WHERE traditional_id = $1
		RETURNING ` + mappingColumns
	m, err := s.queryOne(ctx, q, traditionalID, providers)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoRow
	}
	return m, nil
}

// Delete removes the mapping for the traditional id. Returns whether a row was deleted.
func (s *PostgresStore) Delete(ctx context.Context, traditionalID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identity_mappings WHERE traditional_id = $1`, traditionalID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns mappings matching the filter, newest first.
func (s *PostgresStore) List(ctx context.Context, f Filter, limit, offset int) ([]*domain.Mapping, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Phase != "" {
		add("migration_phase = $%d", string(f.Phase))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Provider != "" {
		add("$%d = ANY(providers)", f.Provider)
	}
	if f.HasDID != nil {
		if *f.HasDID {
			conds = append(conds, "did IS NOT NULL")
		} else {
			conds = append(conds, "did IS NULL")
		}
	}
	q := `SELECT ` + mappingColumns + ` FROM identity_mappings`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountByPhase returns the number of mappings in each migration phase.
func (s *PostgresStore) CountByPhase(ctx context.Context) (map[domain.MigrationPhase]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT migration_phase, COUNT(*) FROM identity_mappings GROUP BY migration_phase`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.MigrationPhase]int{}
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, err
		}
		out[domain.MigrationPhase(phase)] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryOne(ctx context.Context, q string, args ...any) (*domain.Mapping, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapPgError(err)
		}
		return nil, nil
	}
	m, err := scanMapping(rows)
	if err != nil {
		return nil, err
	}
	return m, rows.Err()
}

func scanMapping(row pgx.Row) (*domain.Mapping, error) {
	var m domain.Mapping
	var passwordHash, did, didMethod, walletConnectionID *string
	var phase, status string
	var attrs []byte
	err := row.Scan(
		&m.ID, &m.TraditionalID, &m.Providers, &m.Email,
		&passwordHash, &did, &didMethod,
		&m.WalletConnected, &walletConnectionID, &phase, &status,
		&m.UserDetails.FirstName, &m.UserDetails.LastName, &m.UserDetails.DisplayName,
		&m.UserDetails.Username, &m.UserDetails.Roles, &attrs,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.PasswordHash = deref(passwordHash)
	m.DID = deref(did)
	m.DIDMethod = deref(didMethod)
	m.WalletConnectionID = deref(walletConnectionID)
	m.MigrationPhase = domain.MigrationPhase(phase)
	m.Status = domain.MappingStatus(status)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &m.UserDetails.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &m, nil
}

func marshalAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// mapPgError converts a Postgres unique violation (23505) to ErrDuplicateKey.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
