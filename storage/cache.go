package storage

import (
	"context"
	"errors"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/acseg/acseg"
)

// CacheConfig sizes an optional read cache in front of a store.
type CacheConfig struct {
	MB int `toml:"mb"`
}

// cachedStore keeps recently read values in a freecache.  Values larger than
// the cache can hold are simply not cached.
type cachedStore struct {
	Store
	cache *freecache.Cache
}

// WithCache wraps s with a read cache of the configured size.  A zero size
// returns s unchanged.
func WithCache(s Store, config CacheConfig) Store {
	if config.MB <= 0 {
		return s
	}
	numBytes := config.MB << 20
	acseg.Infof("Created freecache of %s for %s\n", humanize.Bytes(uint64(numBytes)), s)
	return &cachedStore{Store: s, cache: freecache.NewCache(numBytes)}
}

func (c *cachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	k := []byte(key)
	value, err := c.cache.Get(k)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, freecache.ErrNotFound) {
		acseg.Errorf("cache get of %q: %v\n", key, err)
	}
	if value, err = c.Store.Get(ctx, key); err != nil {
		return nil, err
	}
	if err := c.cache.Set(k, value, 0); err != nil && !errors.Is(err, freecache.ErrLargeEntry) {
		acseg.Warningf("unable to cache %q: %v\n", key, err)
	}
	return value, nil
}

func (c *cachedStore) Put(ctx context.Context, key string, value []byte) error {
	c.cache.Del([]byte(key))
	return c.Store.Put(ctx, key, value)
}

func (c *cachedStore) Delete(ctx context.Context, key string) error {
	c.cache.Del([]byte(key))
	return c.Store.Delete(ctx, key)
}

func (c *cachedStore) Close() error {
	c.cache.Clear()
	return c.Store.Close()
}

// HitRate returns the fraction of cached reads that hit.
func (c *cachedStore) HitRate() float64 {
	return c.cache.HitRate()
}
