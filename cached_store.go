package tcc

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default sizing for the cache in front of a store.
const (
	DefaultCacheCapacity = 1000
	DefaultCacheExpiry   = 120 * time.Second
)

// CachedStore decorates any TransactionStore with a bounded, expiring cache
// keyed by xid. Reads check the cache and fall through to the backend on a
// miss; successful creates and updates refresh the entry; a failed update or
// any delete invalidates it so a stale, possibly already-confirmed record is
// never served.
//
// The cache is an optimization only. Correctness holds with it removed: the
// backend's version-matched update remains the arbiter of concurrent
// modification.
type CachedStore struct {
	backend    TransactionStore
	cache      *expirable.LRU[Xid, *Transaction]
	serializer Serializer
}

// NewCachedStore wraps a backend with a cache of the given capacity and
// expiry. Non-positive values fall back to the defaults (1000 entries,
// 120 s).
func NewCachedStore(backend TransactionStore, capacity int, expiry time.Duration) *CachedStore {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if expiry <= 0 {
		expiry = DefaultCacheExpiry
	}

	return &CachedStore{
		backend:    backend,
		cache:      expirable.NewLRU[Xid, *Transaction](capacity, nil, expiry),
		serializer: NewJSONSerializer(),
	}
}

// Create implements the TransactionStore interface.
func (c *CachedStore) Create(ctx context.Context, tx *Transaction) (int, error) {
	count, err := c.backend.Create(ctx, tx)
	if err != nil || count <= 0 {
		return count, err
	}
	c.put(tx)
	return count, nil
}

// Update implements the TransactionStore interface. A failed update means
// the cached copy no longer reflects the backend, so the entry is dropped
// and the next read falls through.
func (c *CachedStore) Update(ctx context.Context, tx *Transaction) (int, error) {
	count, err := c.backend.Update(ctx, tx)
	if err != nil || count <= 0 {
		c.cache.Remove(tx.Xid)
		return count, err
	}
	c.put(tx)
	return count, nil
}

// Delete implements the TransactionStore interface.
func (c *CachedStore) Delete(ctx context.Context, tx *Transaction) (int, error) {
	count, err := c.backend.Delete(ctx, tx)
	c.cache.Remove(tx.Xid)
	return count, err
}

// FindByXid implements the TransactionStore interface.
func (c *CachedStore) FindByXid(ctx context.Context, xid Xid) (*Transaction, error) {
	if cached, ok := c.cache.Get(xid); ok {
		// Re-add so the expiry clock measures time since last access.
		c.cache.Add(xid, cached)
		return c.serializer.Clone(cached)
	}

	tx, err := c.backend.FindByXid(ctx, xid)
	if err != nil || tx == nil {
		return tx, err
	}
	c.put(tx)
	return tx, nil
}

// FindAllUnmodifiedSince implements the TransactionStore interface. Results
// are cached so the recovery path's follow-up reads are warm.
func (c *CachedStore) FindAllUnmodifiedSince(ctx context.Context, cutoff time.Time) ([]*Transaction, error) {
	stale, err := c.backend.FindAllUnmodifiedSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, tx := range stale {
		c.put(tx)
	}
	return stale, nil
}

func (c *CachedStore) put(tx *Transaction) {
	cached, err := c.serializer.Clone(tx)
	if err != nil {
		// Treat an unclonable transaction as a cache miss.
		c.cache.Remove(tx.Xid)
		return
	}
	c.cache.Add(tx.Xid, cached)
}
