// Package querycache holds serialized results of listing queries next to the
// image cache, so that the grid can re-render without asking the provider
// again. It is backed by ristretto and is cleared by the memory guard together
// with the image cache.
package querycache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// Cache is an in-process query-result cache.
type Cache struct {
	rc     *ristretto.Cache[string, []byte]
	logger zerolog.Logger
	ttl    time.Duration
	limit  int

	mu    sync.Mutex
	loads map[string]*call
	keys  map[string]struct{}
}

// call deduplicates concurrent loads for the same key.
type call struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithDefaultTTL sets the TTL used when Set or GetOrSet receive ttl <= 0.
// Zero means entries never expire.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// New creates a Cache. maxCost bounds the number of results held (each result
// costs 1).
func New(maxCost int64, opts ...Option) (*Cache, error) {
	if maxCost <= 0 {
		maxCost = 1
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxCost * 10,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	c := &Cache{
		rc:     rc,
		logger: zerolog.Nop(),
		limit:  int(maxCost) * 2,
		loads:  make(map[string]*call),
		keys:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With().Str("component", "QueryCache").Logger()
	return c, nil
}

// Get retrieves a copy of the value stored under key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := c.rc.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Set stores a copy of val under key.
func (c *Cache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.rc.SetWithTTL(key, bytes.Clone(val), 1, ttl)
	c.rc.Wait()

	c.mu.Lock()
	c.keys[key] = struct{}{}
	if len(c.keys) > c.limit {
		c.pruneLocked()
	}
	c.mu.Unlock()
}

// pruneLocked forgets keys ristretto has already dropped.
func (c *Cache) pruneLocked() {
	for k := range c.keys {
		if _, ok := c.rc.Get(k); !ok {
			delete(c.keys, k)
		}
	}
}

// GetOrSet returns the cached value for key. On a miss it calls loader once
// (deduplicating concurrent callers for the same key), stores a successful
// result and returns it. Failures are handed to every waiting caller and are
// not stored.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	c.mu.Lock()
	if cl, ok := c.loads[key]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		if cl.err != nil {
			return nil, cl.err
		}
		return bytes.Clone(cl.val), nil
	}

	cl := &call{}
	cl.wg.Add(1)
	c.loads[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = loader(ctx)
	if cl.err == nil {
		c.Set(ctx, key, cl.val, ttl)
	} else {
		c.logger.Debug().Err(cl.err).Str("key", key).Msg("Query load failed.")
	}
	cl.wg.Done()

	c.mu.Lock()
	delete(c.loads, key)
	c.mu.Unlock()

	if cl.err != nil {
		return nil, cl.err
	}
	return bytes.Clone(cl.val), nil
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.rc.Del(key)
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
}

// Len returns the number of results currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return len(c.keys)
}

// Clear drops every stored result and returns how many were held.
// In-flight GetOrSet loads still complete and store their result.
func (c *Cache) Clear() int {
	c.mu.Lock()
	c.pruneLocked()
	n := len(c.keys)
	c.keys = make(map[string]struct{})
	c.rc.Clear()
	c.mu.Unlock()

	if n > 0 {
		c.logger.Debug().Int("cleared", n).Msg("Query cache cleared.")
	}
	return n
}

// Close stops ristretto's background goroutines. The Cache must not be used
// afterwards.
func (c *Cache) Close() {
	c.rc.Close()
}
