package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a DocumentStore backed by the ssi_documents table.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres returns a Postgres document store. now may be nil.
func NewPostgres(pool *pgxpool.Pool, now func() time.Time) *Postgres {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Postgres{pool: pool, now: now}
}

const documentColumns = "kind, id, owner_id, subject, payload, created_at, updated_at"

func (s *Postgres) Put(ctx context.Context, d *Document) error {
	if d.Kind == "" || d.ID == "" {
		return errors.New("document kind and id are required")
	}
	now := s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ssi_documents (kind, id, owner_id, subject, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (kind, id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			subject = EXCLUDED.subject,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		d.Kind, d.ID, d.OwnerID, d.Subject, d.Payload, now)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	d.UpdatedAt = now
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, kind, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM ssi_documents WHERE kind = $1 AND id = $2", kind, id)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListBySubject(ctx context.Context, kind, subject string) ([]*Document, error) {
	return s.query(ctx,
		"SELECT "+documentColumns+" FROM ssi_documents WHERE kind = $1 AND subject = $2 ORDER BY created_at", kind, subject)
}

func (s *Postgres) ListByOwner(ctx context.Context, kind, ownerID string) ([]*Document, error) {
	return s.query(ctx,
		"SELECT "+documentColumns+" FROM ssi_documents WHERE kind = $1 AND owner_id = $2 ORDER BY created_at", kind, ownerID)
}

func (s *Postgres) Delete(ctx context.Context, kind, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM ssi_documents WHERE kind = $1 AND id = $2", kind, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) query(ctx context.Context, sql string, args ...any) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	if err := row.Scan(&d.Kind, &d.ID, &d.OwnerID, &d.Subject, &d.Payload, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
