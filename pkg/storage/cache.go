package storage

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/kennel/pkg/auth"
)

// Cache lookup results reported to a CacheRecorder
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// CacheRecorder receives the result of every cached lookup
type CacheRecorder interface {
	RecordIdentityCache(result string)
}

// CachedIdentityStore serves repeated lookups from a bounded LRU whose entries
// expire after ttl. Only found identities are cached, so a newly created name
// is visible immediately; changes to an existing identity (such as
// deactivation) become visible within ttl.
type CachedIdentityStore struct {
	store    auth.IdentityStore
	cache    *lru.LRU[string, auth.Identity]
	recorder CacheRecorder
}

// NewCachedIdentityStore wraps store with a cache of at most size entries.
// A non-positive ttl means entries never expire; callers that want no cache
// should use the wrapped store directly.
func NewCachedIdentityStore(store auth.IdentityStore, size int, ttl time.Duration) *CachedIdentityStore {
	if size < 1 {
		size = 1
	}
	return &CachedIdentityStore{
		store: store,
		cache: lru.NewLRU[string, auth.Identity](size, nil, ttl),
	}
}

// SetRecorder sets the recorder notified of hits and misses
func (c *CachedIdentityStore) SetRecorder(recorder CacheRecorder) {
	c.recorder = recorder
}

// FindByName returns the cached identity or falls through to the wrapped store
func (c *CachedIdentityStore) FindByName(ctx context.Context, name string) (*auth.Identity, error) {
	if identity, ok := c.cache.Get(name); ok {
		c.record(CacheHit)
		return &identity, nil
	}
	c.record(CacheMiss)

	identity, err := c.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.cache.Add(name, *identity)
	return identity, nil
}

func (c *CachedIdentityStore) record(result string) {
	if c.recorder != nil {
		c.recorder.RecordIdentityCache(result)
	}
}
