// Package cache is the process-wide image cache behind the listing grid.
//
// It maps a canonical image URL to a locally displayable handle. Concurrent
// requests for the same URL share one fetch; failures are never cached; the
// number (and optionally the bytes) of resolved images is bounded with
// least-recently-requested eviction. Evicting a key whose fetch is still in
// flight lets the fetch finish but throws its result away.
//
// One Cache is meant to be constructed by the application root and handed to
// every component that shows or warms images.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Keksclan/goRawrGallery/contextx"
	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/fetch"
	"github.com/Keksclan/goRawrGallery/tracing"
	"github.com/rs/zerolog"
)

// entry is Pending while handle is nil and Resolved afterwards.
type entry struct {
	key    string
	call   *call
	handle *decode.Handle
	elem   *list.Element
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Joins     uint64
	Fetches   uint64
	Failures  uint64
	Evictions uint64
	Discards  uint64
}

// Cache is the image cache. All methods are safe for concurrent use.
type Cache struct {
	fetcher fetch.Fetcher
	cfg     config
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // of *entry, front is most recently requested
	bytes   int64
	stats   Stats
}

// New creates a Cache that loads misses through f.
func New(f fetch.Fetcher, opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Cache{
		fetcher: f,
		cfg:     cfg,
		logger:  cfg.logger.With().Str("component", "ImageCache").Logger(),
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
}

// Request returns the shared outcome for key. A resolved key settles
// immediately and becomes the most recently requested; a pending key joins
// the fetch already in flight; an absent key starts exactly one new fetch.
//
// ctx only contributes values (trace parent, requester tags). Its
// cancellation never stops the fetch.
func (c *Cache) Request(ctx context.Context, key string) *Future {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.handle != nil {
			c.lru.MoveToFront(e.elem)
			c.stats.Hits++
			h := e.handle
			c.mu.Unlock()

			c.cfg.metrics.request("hit")
			c.logger.Debug().Str("key", key).Str("requester", contextx.RequesterFromContext(ctx)).Msg("Image cache hit.")
			return &Future{c: settledCall(h, nil)}
		}
		c.stats.Joins++
		cl := e.call
		c.mu.Unlock()

		c.cfg.metrics.request("join")
		c.logger.Debug().Str("key", key).Str("requester", contextx.RequesterFromContext(ctx)).Msg("Joining in-flight image fetch.")
		return &Future{c: cl}
	}

	cl := newCall()
	c.entries[key] = &entry{key: key, call: cl}
	c.stats.Misses++
	c.stats.Fetches++
	c.mu.Unlock()

	c.cfg.metrics.request("miss")
	c.logger.Debug().Str("key", key).Str("requester", contextx.RequesterFromContext(ctx)).Msg("Image cache miss, fetching.")

	go c.run(context.WithoutCancel(ctx), key, cl)
	return &Future{c: cl}
}

// Get is Request followed by Wait.
func (c *Cache) Get(ctx context.Context, key string) (*decode.Handle, error) {
	return c.Request(ctx, key).Wait(ctx)
}

// Peek reports the state of key without starting a fetch or touching its
// recency.
func (c *Cache) Peek(key string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		return Result{Status: StatusAbsent}
	case e.handle != nil:
		return Result{Status: StatusResolved, Handle: e.handle}
	default:
		return Result{Status: StatusPending}
	}
}

// run performs the fetch for cl and settles it.
func (c *Cache) run(ctx context.Context, key string, cl *call) {
	ctx, span := c.cfg.tracing.StartFetch(ctx, key)
	if c.cfg.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	h, err := c.load(ctx, key)
	c.cfg.metrics.fetched(time.Since(start), err)

	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Str("requester", contextx.RequesterFromContext(ctx)).Msg("Image fetch failed.")
	}
	if discarded := c.settle(key, cl, h, err); discarded {
		tracing.Discarded(span)
	}
	tracing.End(span, err)
}

// load fetches and decodes key. A panic in either step becomes a FetchError so
// joiners are never left waiting.
func (c *Cache) load(ctx context.Context, key string) (h *decode.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = &FetchError{Key: key, Err: panicError{value: r}}
		}
	}()

	payload, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	h, err = c.cfg.decoder.Decode(key, payload)
	if err != nil {
		return nil, &FetchError{Key: key, Err: err}
	}
	return h, nil
}

// settle publishes the outcome of cl. The entry map decides whether the
// result is stored: only the exact pending entry that started cl may be
// written. It reports whether a successful result was discarded.
func (c *Cache) settle(key string, cl *call, h *decode.Handle, err error) (discarded bool) {
	var evicted []*decode.Handle

	c.mu.Lock()
	e, ok := c.entries[key]
	current := ok && e.call == cl && e.handle == nil

	switch {
	case err != nil:
		c.stats.Failures++
		if current {
			delete(c.entries, key)
		}
	case !current:
		c.stats.Discards++
		discarded = true
		h.Detach()
	case c.cfg.maxBytes > 0 && h.Size() > c.cfg.maxBytes:
		delete(c.entries, key)
		h.Detach()
	default:
		evicted = c.makeRoom(h.Size())
		e.handle = h
		e.call = nil
		e.elem = c.lru.PushFront(e)
		c.bytes += h.Size()
		c.stats.Evictions += uint64(len(evicted))
	}

	cl.handle, cl.err = h, err
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	for _, old := range evicted {
		old.Release()
	}
	close(cl.done)

	c.cfg.metrics.evicted("lru", len(evicted))
	c.cfg.metrics.size(entries, bytes)
	if discarded {
		c.cfg.metrics.discarded()
		c.logger.Debug().Str("key", key).Msg("Discarding image fetched after eviction.")
	}
	if len(evicted) > 0 {
		c.logger.Debug().Int("evicted", len(evicted)).Msg("Evicted least recently requested images.")
	}
	return discarded
}

// makeRoom unlinks least-recently-requested resolved entries until one more
// image of size bytes fits. Must be called with c.mu held; the returned
// handles must be released after unlocking.
func (c *Cache) makeRoom(size int64) []*decode.Handle {
	var out []*decode.Handle
	for c.lru.Len() > 0 {
		overCount := c.cfg.maxEntries > 0 && c.lru.Len() >= c.cfg.maxEntries
		overBytes := c.cfg.maxBytes > 0 && c.bytes+size > c.cfg.maxBytes
		if !overCount && !overBytes {
			break
		}
		old := c.lru.Remove(c.lru.Back()).(*entry)
		delete(c.entries, old.key)
		c.bytes -= old.handle.Size()
		out = append(out, old.handle)
	}
	return out
}

// Evict removes key. A resolved handle is released; a pending fetch is left to
// finish and its result discarded. It reports whether an entry existed.
func (c *Cache) Evict(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	var h *decode.Handle
	if e.handle != nil {
		c.lru.Remove(e.elem)
		c.bytes -= e.handle.Size()
		c.stats.Evictions++
		h = e.handle
	}
	entries, bytes := c.lru.Len(), c.bytes
	c.mu.Unlock()

	if h != nil {
		h.Release()
		c.cfg.metrics.evicted("explicit", 1)
	}
	c.cfg.metrics.size(entries, bytes)
	return true
}

// Clear removes every entry and releases every resolved handle. Pending
// fetches finish and are discarded. It never blocks on a fetch and returns
// the number of handles released.
func (c *Cache) Clear() int {
	c.mu.Lock()
	handles := make([]*decode.Handle, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		handles = append(handles, el.Value.(*entry).handle)
	}
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.bytes = 0
	c.stats.Evictions += uint64(len(handles))
	c.mu.Unlock()

	for _, h := range handles {
		h.Release()
	}
	c.cfg.metrics.evicted("clear", len(handles))
	c.cfg.metrics.size(0, 0)
	if len(handles) > 0 {
		c.logger.Debug().Int("released", len(handles)).Msg("Image cache cleared.")
	}
	return len(handles)
}

// Len returns the number of resolved images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes returns the estimated bytes held by resolved images.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Pending returns the number of fetches whose result would still be stored.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) - c.lru.Len()
}

// Keys returns the resolved keys from most to least recently requested.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Stats returns a snapshot of the activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
