package audit

import (
	"context"
	"errors"
	"testing"

	"ssi-migration-bridge/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListBySubject(ctx context.Context, subject string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	ipExtractor := func(ctx context.Context) string {
		return "192.168.1.1"
	}
	logger := NewLogger(repo, ipExtractor, nil)

	logger.LogEvent(context.Background(), "u42", "add_did", "mapping", `{"did":"did:key:z6Mk1"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Subject != "u42" {
		t.Errorf("subject = %q, want %q", entry.Subject, "u42")
	}
	if entry.Action != "add_did" || entry.Resource != "mapping" {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q", entry.IP)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Errorf("entry not fully populated: %+v", entry)
	}
}

func TestLogger_LogEvent_EmptySubjectUsesSentinel(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil, nil)

	logger.LogEvent(context.Background(), "", "login_failure", "auth", "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].Subject != SentinelSubject {
		t.Errorf("subject = %q, want sentinel", repo.entries[0].Subject)
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want unknown without extractor", repo.entries[0].IP)
	}
}

func TestLogger_LogEvent_RepoErrorIsSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo, nil, nil)

	// Must not panic or propagate the error.
	logger.LogEvent(context.Background(), "u42", "login", "auth", "")
}

func TestLogger_LogEvent_NilRepoIsNoop(t *testing.T) {
	logger := NewLogger(nil, nil, nil)
	logger.LogEvent(context.Background(), "u42", "login", "auth", "")
}
