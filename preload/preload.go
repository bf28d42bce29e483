// Package preload warms the image cache ahead of the user's scroll. It goes
// through the cache's normal request path, so warm-up shares fetches with
// the grid. Preloading is advisory: failures are logged and dropped, never
// retried.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/Keksclan/goRawrGallery/cache"
	"github.com/Keksclan/goRawrGallery/contextx"
	"github.com/Keksclan/goRawrGallery/listing"
	"github.com/Keksclan/goRawrGallery/ratelimit"
	"github.com/Keksclan/goRawrGallery/resolve"
	"github.com/Keksclan/goRawrGallery/tracing"
	"github.com/rs/zerolog"
)

// DefaultDelay keeps warm-up off the critical render path.
const DefaultDelay = 100 * time.Millisecond

// ImageSource is the part of the image cache the Preloader needs.
type ImageSource interface {
	Request(ctx context.Context, key string) *cache.Future
}

type config struct {
	delay   time.Duration
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
	tracing *tracing.TracingConfig
}

// Option configures a Preloader.
type Option func(*config)

// WithDelay sets the pause before a batch is issued.
func WithDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithRateLimit paces issuance to rps requests per second. rps <= 0 disables
// pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) { c.limiter = ratelimit.NewLimiter(rps, burst) }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracing enables a span per batch.
func WithTracing(cfg *tracing.TracingConfig) Option {
	return func(c *config) { c.tracing = cfg }
}

// Preloader issues background image requests.
type Preloader struct {
	images   ImageSource
	resolver *resolve.Resolver
	cfg      config
	logger   zerolog.Logger

	mu     sync.Mutex
	active int
	idle   *sync.Cond
}

// New creates a Preloader. resolver may be nil when only URLs is used.
func New(images ImageSource, resolver *resolve.Resolver, opts ...Option) *Preloader {
	cfg := config{delay: DefaultDelay, logger: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}
	p := &Preloader{
		images:   images,
		resolver: resolver,
		cfg:      cfg,
		logger:   cfg.logger.With().Str("component", "Preloader").Logger(),
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Listings warms the best image of each of the first n listings. Listings
// without an image are skipped. It returns the number of URLs scheduled.
func (p *Preloader) Listings(ctx context.Context, ls []listing.Listing, n int) int {
	if n > len(ls) {
		n = len(ls)
	}
	urls := make([]string, 0, max(n, 0))
	for _, l := range ls[:max(n, 0)] {
		path, ok := l.BestImagePath()
		if !ok {
			continue
		}
		urls = append(urls, p.resolver.Resolve(path))
	}
	return p.URLs(ctx, urls)
}

// FromProvider fetches the next n listings after the one with ID after and
// warms them. A provider error is logged and nothing is scheduled.
func (p *Preloader) FromProvider(ctx context.Context, provider listing.Provider, after string, n int) int {
	ls, err := provider.Upcoming(ctx, after, n)
	if err != nil {
		p.logger.Debug().Err(err).Str("after", after).Msg("Preload: listing provider failed, skipping batch.")
		return 0
	}
	return p.Listings(ctx, ls, n)
}

// URLs warms already-canonical urls, fire-and-forget. It returns the number
// of URLs scheduled. Cancelling ctx during the delay drops the batch.
func (p *Preloader) URLs(ctx context.Context, urls []string) int {
	if len(urls) == 0 {
		return 0
	}
	batch := append([]string(nil), urls...)

	p.mu.Lock()
	p.active++
	p.mu.Unlock()
	go func() {
		defer p.finish()
		p.run(ctx, batch)
	}()
	return len(batch)
}

func (p *Preloader) run(ctx context.Context, urls []string) {
	if p.cfg.delay > 0 {
		t := time.NewTimer(p.cfg.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			p.logger.Debug().Int("count", len(urls)).Msg("Preload batch dropped before issue.")
			return
		}
	}

	ctx = contextx.WithRequester(ctx, contextx.RequesterPreload)
	ctx, span := p.cfg.tracing.StartPreload(ctx, len(urls))
	defer tracing.End(span, nil)

	futures := make([]*cache.Future, 0, len(urls))
	issued := urls
	for i, u := range urls {
		if err := p.cfg.limiter.Wait(ctx); err != nil {
			p.logger.Debug().Err(err).Int("remaining", len(urls)-i).Msg("Preload batch cut short.")
			issued = urls[:i]
			break
		}
		futures = append(futures, p.images.Request(ctx, u))
	}

	for i, f := range futures {
		<-f.Done()
		if _, err := f.Result(); err != nil {
			p.logger.Debug().Err(err).Str("url", issued[i]).Msg("Preload failed.")
		}
	}
}

func (p *Preloader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if p.active == 0 {
		p.idle.Broadcast()
	}
}

// Wait blocks until every scheduled batch has been issued and settled. It may
// be called while other goroutines are still scheduling; it returns the first
// time no batch is in flight.
func (p *Preloader) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.active > 0 {
		p.idle.Wait()
	}
}
