package modelstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently used blobs in a bounded LRU in front of a
// slower backend. Reads fall through on a miss; writes go to the backend
// first and update the cache only on success.
//
// The cache is per process. Writers on other instances are not visible
// here until the entry is evicted, so a backend shared between instances
// must not be cached.
type CachedStore struct {
	backend Store
	cache   *lru.Cache[string, []byte]
}

// NewCachedStore wraps backend with an LRU of the given size.
func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	return &CachedStore{backend: backend, cache: cache}, nil
}

// Load implements Store.
func (c *CachedStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if blob, ok := c.cache.Get(key); ok {
		return append([]byte(nil), blob...), true, nil
	}

	blob, found, err := c.backend.Load(ctx, key)
	if err != nil || !found {
		return blob, found, err
	}
	c.cache.Add(key, append([]byte(nil), blob...))
	return blob, true, nil
}

// Save implements Store.
func (c *CachedStore) Save(ctx context.Context, key string, blob []byte) error {
	if err := c.backend.Save(ctx, key, blob); err != nil {
		c.cache.Remove(key)
		return err
	}
	c.cache.Add(key, append([]byte(nil), blob...))
	return nil
}

// Len returns the number of cached entries.
func (c *CachedStore) Len() int { return c.cache.Len() }
