package modelstore

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// HandleCache owns every live handle, keyed by storage key. It is the
// only component allowed to materialize or release the underlying
// ephemeral resource.
//
// Invariant: at most one live handle exists per storage key. A lookup for
// an already-cached key is O(1) and creates nothing; concurrent lookups
// for an uncached key are collapsed into a single store read and a single
// materialization.
//
// Why an eviction callback: entries leave the cache through Revoke,
// Purge, replacement and capacity eviction alike. Releasing in the
// eviction callback covers all of those exits, so no resource can
// outlive its cache entry.
type HandleCache struct {
	store   *Store
	factory HandleFactory
	entries *lru.Cache[string, Handle]
	group   singleflight.Group
	log     zerolog.Logger
	metrics *metrics
}

func newHandleCache(store *Store, factory HandleFactory, capacity int, log zerolog.Logger, met *metrics) (*HandleCache, error) {
	c := &HandleCache{
		store:   store,
		factory: factory,
		log:     log,
		metrics: met,
	}

	entries, err := lru.NewWithEvict(capacity, func(key string, h Handle) {
		c.factory.Release(h)
		c.metrics.handleReleased()
	})
	if err != nil {
		return nil, fmt.Errorf("creating handle cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// GetOrCreate returns the live handle for an asset, materializing it from
// the store on first access. All callers of the same key receive the
// identical handle until it is revoked.
//
// When the persisted record is absent or corrupt the miss is reported as
// ErrNotFound or ErrMediumCorrupted rather than a stale handle.
func (c *HandleCache) GetOrCreate(ctx context.Context, ownerID int64, name string) (Handle, error) {
	key := c.store.Key(ownerID, name)

	if h, ok := c.entries.Get(key); ok {
		c.metrics.cacheHit()
		return h, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check after the suspension point: a logically concurrent
		// call may have inserted the entry while this one was queued.
		if h, ok := c.entries.Get(key); ok {
			return h, nil
		}

		c.metrics.cacheMiss()

		asset, err := c.store.Read(ctx, ownerID, name)
		if err != nil {
			c.log.Debug().
				Int64("owner", ownerID).
				Str("name", name).
				Err(err).
				Msg("handle materialization miss")
			return nil, err
		}

		h, err := c.factory.Materialize(asset.Data, asset.ContentType)
		if err != nil {
			return nil, fmt.Errorf("materializing handle for %q: %w", name, err)
		}

		c.insert(key, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Handle), nil
}

// Seed materializes a handle directly from already-decoded bytes,
// replacing any previous handle for the key. The upload path uses this so
// a fresh upload does not pay a redundant store read and decode, and so a
// stale handle from a previous upload of the same name is revoked.
func (c *HandleCache) Seed(ownerID int64, name string, data []byte, contentType string) (Handle, error) {
	h, err := c.factory.Materialize(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("materializing handle for %q: %w", name, err)
	}

	c.insert(c.store.Key(ownerID, name), h)
	return h, nil
}

// insert replaces the entry for key. The explicit Remove makes the
// eviction callback fire for a previous handle; a plain Add would swap
// the value silently and leak the old resource.
func (c *HandleCache) insert(key string, h Handle) {
	c.entries.Remove(key)
	c.entries.Add(key, h)
	c.metrics.handleMaterialized()
}

// Revoke releases the handle for key and drops its entry. Idempotent.
func (c *HandleCache) Revoke(key string) {
	c.entries.Remove(key)
}

// RevokeAllForOwner revokes every cached handle under the owner's
// namespace.
func (c *HandleCache) RevokeAllForOwner(ownerID int64) {
	prefix := c.store.ownerPrefix(ownerID)
	revoked := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
			revoked++
		}
	}
	if revoked > 0 {
		c.log.Debug().Int64("owner", ownerID).Int("revoked", revoked).
			Msg("revoked cached handles for owner")
	}
}

// RevokeAll revokes every cached handle. Used at teardown so no resource
// survives the cache.
func (c *HandleCache) RevokeAll() {
	c.entries.Purge()
}

// Len returns the number of live cache entries.
func (c *HandleCache) Len() int {
	return c.entries.Len()
}
