package store

import (
	"context"

	"github.com/bluele/gcache"
)

// Cached wraps a DocumentStore with a bounded LRU in front of Get. The store
// stays the source of truth: writes and deletes go through and invalidate,
// and list operations always hit the store (cache-aside, never
// read-your-cache-only).
type Cached struct {
	inner DocumentStore
	cache gcache.Cache
}

// NewCached returns a cache-aside wrapper holding at most size documents.
func NewCached(inner DocumentStore, size int) *Cached {
	if size <= 0 {
		size = 1024
	}
	return &Cached{
		inner: inner,
		cache: gcache.New(size).LRU().Build(),
	}
}

func (c *Cached) Put(ctx context.Context, d *Document) error {
	if err := c.inner.Put(ctx, d); err != nil {
		return err
	}
	c.cache.Remove(memKey(d.Kind, d.ID))
	return nil
}

func (c *Cached) Get(ctx context.Context, kind, id string) (*Document, error) {
	key := memKey(kind, id)
	if v, err := c.cache.Get(key); err == nil {
		return cloneDoc(v.(*Document)), nil
	}
	d, err := c.inner.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(key, cloneDoc(d))
	return d, nil
}

func (c *Cached) ListBySubject(ctx context.Context, kind, subject string) ([]*Document, error) {
	return c.inner.ListBySubject(ctx, kind, subject)
}

func (c *Cached) ListByOwner(ctx context.Context, kind, ownerID string) ([]*Document, error) {
	return c.inner.ListByOwner(ctx, kind, ownerID)
}

func (c *Cached) Delete(ctx context.Context, kind, id string) error {
	if err := c.inner.Delete(ctx, kind, id); err != nil {
		return err
	}
	c.cache.Remove(memKey(kind, id))
	return nil
}
