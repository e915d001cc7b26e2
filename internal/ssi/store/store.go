// Package store persists the JSON documents the SSI collaborators own: DID
// documents, issued credentials, and wallet connection state. Documents are
// schemaless payloads keyed by (kind, id); the collaborators own their shapes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// Document kinds used by the collaborators.
const (
	KindDID                 = "did"
	KindCredential          = "credential"
	KindConnection          = "connection"
	KindCredentialOffer     = "credential_offer"
	KindPresentationRequest = "presentation_request"
)

// ErrNotFound is returned when no document exists for a (kind, id) pair.
var ErrNotFound = errors.New("document not found")

// Document is one persisted collaborator record.
type Document struct {
	Kind      string
	ID        string
	OwnerID   string
	Subject   string
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore persists collaborator documents. Put upserts by (kind, id).
type DocumentStore interface {
	Put(ctx context.Context, d *Document) error
	Get(ctx context.Context, kind, id string) (*Document, error)
	ListBySubject(ctx context.Context, kind, subject string) ([]*Document, error)
	ListByOwner(ctx context.Context, kind, ownerID string) ([]*Document, error)
	Delete(ctx context.Context, kind, id string) error
}

// Memory is an in-memory DocumentStore for tests and single-process demos.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*Document
	now  func() time.Time
}

// NewMemory returns an empty in-memory store. now may be nil.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Memory{docs: map[string]*Document{}, now: now}
}

func memKey(kind, id string) string { return kind + "/" + id }

func cloneDoc(d *Document) *Document {
	cp := *d
	cp.Payload = append(json.RawMessage(nil), d.Payload...)
	return &cp
}

func (s *Memory) Put(_ context.Context, d *Document) error {
	if d.Kind == "" || d.ID == "" {
		return errors.New("document kind and id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	key := memKey(d.Kind, d.ID)
	if existing, ok := s.docs[key]; ok {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.docs[key] = cloneDoc(d)
	return nil
}

func (s *Memory) Get(_ context.Context, kind, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.docs[memKey(kind, id)]; ok {
		return cloneDoc(d), nil
	}
	return nil, ErrNotFound
}

func (s *Memory) ListBySubject(_ context.Context, kind, subject string) ([]*Document, error) {
	return s.list(func(d *Document) bool { return d.Kind == kind && d.Subject == subject })
}

func (s *Memory) ListByOwner(_ context.Context, kind, ownerID string) ([]*Document, error) {
	return s.list(func(d *Document) bool { return d.Kind == kind && d.OwnerID == ownerID })
}

func (s *Memory) list(match func(*Document) bool) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, d := range s.docs {
		if match(d) {
			out = append(out, cloneDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) Delete(_ context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(kind, id)
	if _, ok := s.docs[key]; !ok {
		return ErrNotFound
	}
	delete(s.docs, key)
	return nil
}
