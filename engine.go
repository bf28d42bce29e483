package gorawrgallery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Keksclan/goRawrGallery/cache"
	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/fetch"
	"github.com/Keksclan/goRawrGallery/guard"
	"github.com/Keksclan/goRawrGallery/listing"
	"github.com/Keksclan/goRawrGallery/preload"
	"github.com/Keksclan/goRawrGallery/querycache"
	"github.com/Keksclan/goRawrGallery/render"
	"github.com/Keksclan/goRawrGallery/resolve"
	"github.com/Keksclan/goRawrGallery/visibility"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ErrNoProvider is returned by Upcoming when no listing provider is set.
var ErrNoProvider = errors.New("gorawrgallery: no listing provider configured")

// Engine owns the single image cache and every component that feeds it.
// All methods are safe for concurrent use.
type Engine struct {
	cfg    config
	logger zerolog.Logger

	resolver  *resolve.Resolver
	images    *cache.Cache
	queries   *querycache.Cache
	provider  listing.Provider
	preloader *preload.Preloader
	gate      *visibility.Gate
	guard     *guard.Guard
	gatherer  prometheus.Gatherer

	closeOnce sync.Once
}

// NewEngine creates an [Engine] by applying the supplied functional [Option]
// values. WithOrigin is required.
//
// Example:
//
//	eng, err := gorawrgallery.NewEngine(append(gorawrgallery.DefaultOptions(),
//		gorawrgallery.WithOrigin("https://gallery.example.com"),
//		gorawrgallery.WithViewport(viewport),
//	)...)
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	logger := cfg.logger.With().Str("component", "Engine").Logger()

	resolver, err := resolve.New(resolve.Config{
		Origin:      cfg.origin,
		Prefix:      cfg.prefix,
		Placeholder: cfg.placeholder,
	})
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	f := cfg.fetcher
	if f == nil {
		var fopts []fetch.Option
		if cfg.httpClient != nil {
			fopts = append(fopts, fetch.WithHTTPClient(cfg.httpClient))
		}
		if cfg.breaker != nil {
			fopts = append(fopts, fetch.WithBreaker(*cfg.breaker))
		}
		f = fetch.NewHTTP(fopts...)
	}
	f = fetch.Wrap(f, cfg.middleware...)

	copts := []cache.Option{
		cache.WithMaxEntries(cfg.maxEntries),
		cache.WithMaxBytes(cfg.maxBytes),
		cache.WithFetchTimeout(cfg.fetchTimeout),
		cache.WithLogger(cfg.logger),
		cache.WithTracing(cfg.tracing),
		cache.WithDecoder(cfg.decoder),
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.registerer != nil {
		m, err := cache.NewMetrics(cfg.registerer, "gallery")
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		copts = append(copts, cache.WithMetrics(m))
		if g, ok := cfg.registerer.(prometheus.Gatherer); ok {
			gatherer = g
		}
	}
	images := cache.New(f, copts...)

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		resolver: resolver,
		images:   images,
		provider: cfg.provider,
		gate:     visibility.NewGate(cfg.observer),
		gatherer: gatherer,
	}

	clearers := []guard.Clearer{images}
	if cfg.queryCacheCost > 0 {
		qc, err := querycache.New(cfg.queryCacheCost, querycache.WithLogger(cfg.logger), querycache.WithDefaultTTL(cfg.queryTTL))
		if err != nil {
			return nil, fmt.Errorf("query cache: %w", err)
		}
		e.queries = qc
		clearers = append(clearers, qc)
		if e.provider != nil {
			e.provider = listing.Cached(e.provider, qc, cfg.queryTTL)
		}
	}

	e.preloader = preload.New(images, resolver,
		preload.WithDelay(cfg.preloadDelay),
		preload.WithRateLimit(cfg.preloadRPS, cfg.preloadBurst),
		preload.WithLogger(cfg.logger),
		preload.WithTracing(cfg.tracing),
	)

	e.guard = guard.New(clearers,
		guard.WithVisibility(cfg.visibility),
		guard.WithSampler(cfg.sampler),
		guard.WithInterval(cfg.guardInterval),
		guard.WithThreshold(cfg.guardThreshold),
		guard.WithLogger(cfg.logger),
	)

	logger.Debug().Str("origin", cfg.origin).Int("max_entries", cfg.maxEntries).Bool("query_cache", e.queries != nil).Msg("Engine ready.")
	return e, nil
}

// Resolve returns the canonical URL for a storage path or absolute URL.
func (e *Engine) Resolve(path string) string {
	return e.resolver.Resolve(path)
}

// RequestImage resolves path and asks the cache for it. It never blocks: the
// result is resolved for a cached image and pending while a fetch runs. A
// failure shows up on the next call after the fetch settles, or via Await.
// A path that resolves to the placeholder is resolved at once with a static
// handle and never fetched.
func (e *Engine) RequestImage(ctx context.Context, path string) cache.Result {
	url := e.resolver.Resolve(path)
	if e.resolver.IsPlaceholder(url) {
		return cache.Result{Status: cache.StatusResolved, Handle: decode.NewStatic(url)}
	}
	return e.images.Request(ctx, url).Snapshot()
}

// Await resolves path and blocks until its image is available or the fetch
// fails. Returning early on ctx does not cancel the fetch. The placeholder is
// returned without a fetch.
func (e *Engine) Await(ctx context.Context, path string) (*decode.Handle, error) {
	url := e.resolver.Resolve(path)
	if e.resolver.IsPlaceholder(url) {
		return decode.NewStatic(url), nil
	}
	return e.images.Get(ctx, url)
}

// Preload warms the cache for paths in the background.
func (e *Engine) Preload(ctx context.Context, paths []string) int {
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		u := e.resolver.Resolve(p)
		if e.resolver.IsPlaceholder(u) {
			continue
		}
		urls = append(urls, u)
	}
	return e.preloader.URLs(ctx, urls)
}

// PreloadListings warms the best image of each of the first n listings.
func (e *Engine) PreloadListings(ctx context.Context, ls []listing.Listing, n int) int {
	return e.preloader.Listings(ctx, ls, n)
}

// PreloadUpcoming asks the listing provider for the n listings after the one
// with ID after and warms their images.
func (e *Engine) PreloadUpcoming(ctx context.Context, after string, n int) int {
	if e.provider == nil {
		return 0
	}
	return e.preloader.FromProvider(ctx, e.provider, after, n)
}

// Upcoming returns the n listings after the one with ID after, through the
// query cache when it is enabled.
func (e *Engine) Upcoming(ctx context.Context, after string, n int) ([]listing.Listing, error) {
	if e.provider == nil {
		return nil, ErrNoProvider
	}
	return e.provider.Upcoming(ctx, after, n)
}

// WaitPreloads blocks until every preload batch has been issued and settled.
func (e *Engine) WaitPreloads() {
	e.preloader.Wait()
}

// OnVisible calls fn once when el first comes within marginPx of the
// viewport.
func (e *Engine) OnVisible(el visibility.Element, marginPx int, fn func()) (stop func()) {
	return e.gate.OnVisible(el, marginPx, fn)
}

// NewRenderer returns a Renderer for el showing the image at path, gated on
// the engine's viewport. opts are applied after the engine's own. A path
// without an image renders the placeholder as shown.
func (e *Engine) NewRenderer(el visibility.Element, path string, opts ...render.Option) *render.Renderer {
	base := []render.Option{
		render.WithGate(e.gate, el, e.cfg.renderMargin),
		render.WithPlaceholder(e.resolver.Placeholder()),
		render.WithLogger(e.cfg.logger),
	}
	url := e.resolver.Resolve(path)
	if e.resolver.IsPlaceholder(url) {
		url = ""
	}
	return render.New(url, e.images, append(base, opts...)...)
}

// ClearAll releases every cached image and query result.
func (e *Engine) ClearAll() int {
	return e.guard.ClearAll("explicit")
}

// Run runs the memory guard until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.guard.Run(ctx)
}

// Close releases everything the engine holds. Fetches still in flight finish
// and are discarded. Stop Run before calling Close.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		n := e.ClearAll()
		if e.queries != nil {
			e.queries.Close()
		}
		e.logger.Debug().Int("released", n).Msg("Engine closed.")
	})
}

// Cache returns the image cache.
func (e *Engine) Cache() *cache.Cache {
	return e.images
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics from
// the registry passed to WithMetrics, or the default registry.
func (e *Engine) MetricsHandler() http.Handler {
	if e.gatherer == prometheus.DefaultGatherer {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{})
}
