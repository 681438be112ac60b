// Package security caches the cluster signing keys the routing node uses to
// validate and sign inter-node time metadata.
package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/cascadedb/cascade/kit/errors"
)

// defaultCacheSize bounds the number of keys held per purpose.
const defaultCacheSize = 20

// Key is one cluster signing key.
type Key struct {
	ID        int64
	Purpose   string
	Material  []byte
	ExpiresAt time.Time
}

// ValidAt reports whether the key may sign or validate at the given time.
func (k Key) ValidAt(t time.Time) bool {
	return k.ExpiresAt.After(t)
}

// KeyLoader fetches keys from the keys collection when the cache misses.
type KeyLoader interface {
	LoadKey(ctx context.Context, purpose string, id int64) (Key, error)
	LoadNewestKey(ctx context.Context, purpose string) (Key, error)
}

// KeysCache serves signing keys for one purpose from a bounded LRU, falling
// back to the loader on misses and refreshing entries that have expired.
type KeysCache struct {
	purpose string
	loader  KeyLoader
	logger  *zap.Logger

	mu    sync.Mutex
	cache *lru.Cache[int64, Key]
}

// NewKeysCache builds a cache for one key purpose.
func NewKeysCache(purpose string, loader KeyLoader) (*KeysCache, error) {
	cache, err := lru.New[int64, Key](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &KeysCache{
		purpose: purpose,
		loader:  loader,
		logger:  zap.NewNop(),
		cache:   cache,
	}, nil
}

// WithLogger sets the logger on the cache.
func (c *KeysCache) WithLogger(log *zap.Logger) {
	c.logger = log.With(zap.String("service", "keys-cache"), zap.String("purpose", c.purpose))
}

// KeyForValidation returns the key with the given id, valid at the given
// time. Expired cached entries are reloaded once before failing.
func (c *KeysCache) KeyForValidation(ctx context.Context, id int64, at time.Time) (Key, error) {
	c.mu.Lock()
	if key, ok := c.cache.Get(id); ok && key.ValidAt(at) {
		c.mu.Unlock()
		return key, nil
	}
	c.mu.Unlock()

	key, err := c.loader.LoadKey(ctx, c.purpose, id)
	if err != nil {
		return Key{}, err
	}
	if key.ID != id {
		return Key{}, &errors.Error{
			Code: errors.EInternal,
			Msg:  fmt.Sprintf("loader returned key %d for key %d", key.ID, id),
		}
	}
	if !key.ValidAt(at) {
		return Key{}, &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("key %d for purpose %s expired at %s", id, c.purpose, key.ExpiresAt.UTC().Format(time.RFC3339)),
		}
	}

	c.mu.Lock()
	c.cache.Add(key.ID, key)
	c.mu.Unlock()
	c.logger.Debug("Cached validation key", zap.Int64("key_id", key.ID))
	return key, nil
}

// KeyForSigning returns the newest key valid at the given time.
func (c *KeysCache) KeyForSigning(ctx context.Context, at time.Time) (Key, error) {
	c.mu.Lock()
	var newest Key
	for _, id := range c.cache.Keys() {
		if key, ok := c.cache.Peek(id); ok && key.ValidAt(at) && key.ID > newest.ID {
			newest = key
		}
	}
	c.mu.Unlock()
	if newest.ID != 0 {
		return newest, nil
	}

	key, err := c.loader.LoadNewestKey(ctx, c.purpose)
	if err != nil {
		return Key{}, err
	}
	if !key.ValidAt(at) {
		return Key{}, &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("newest key for purpose %s expired at %s", c.purpose, key.ExpiresAt.UTC().Format(time.RFC3339)),
		}
	}

	c.mu.Lock()
	c.cache.Add(key.ID, key)
	c.mu.Unlock()
	return key, nil
}

// Len returns the number of cached keys.
func (c *KeysCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
