package gorawrgallery

import (
	"time"

	"github.com/Keksclan/goRawrGallery/breaker"
	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/fetch"
	"github.com/Keksclan/goRawrGallery/guard"
	"github.com/Keksclan/goRawrGallery/listing"
	"github.com/Keksclan/goRawrGallery/tracing"
	"github.com/Keksclan/goRawrGallery/visibility"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures an Engine.
type Option func(*config)

// WithOrigin sets the storage origin, e.g. "https://gallery.example.com".
// It is required.
func WithOrigin(origin string) Option {
	return func(c *config) { c.origin = origin }
}

// WithStoragePrefix overrides the object route prepended to bare keys.
func WithStoragePrefix(prefix string) Option {
	return func(c *config) { c.prefix = prefix }
}

// WithPlaceholder overrides the asset shown for missing or failed images.
func WithPlaceholder(url string) Option {
	return func(c *config) { c.placeholder = url }
}

// WithMaxEntries bounds the number of decoded images kept. n <= 0 disables
// the bound.
func WithMaxEntries(n int) Option {
	return func(c *config) { c.maxEntries = n }
}

// WithMaxBytes bounds the estimated bytes of decoded images kept.
func WithMaxBytes(n int64) Option {
	return func(c *config) { c.maxBytes = n }
}

// WithFetchTimeout bounds a single image fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) { c.fetchTimeout = d }
}

// WithFetcher replaces the HTTP fetcher entirely. WithHTTPClient and
// WithBreaker are ignored when it is set.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// WithDecoder replaces the default header-validating decoder.
func WithDecoder(d decode.Decoder) Option {
	return func(c *config) { c.decoder = d }
}

// WithHTTPClient sets the client used by the default HTTP fetcher.
func WithHTTPClient(hc fetch.HttpClient) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithBreaker enables a per-host circuit breaker on the default HTTP fetcher.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.breaker = &cfg }
}

// WithFetchMiddleware appends middleware around the fetcher.
func WithFetchMiddleware(mw ...fetch.Middleware) Option {
	return func(c *config) { c.middleware = append(c.middleware, mw...) }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics registers image cache metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithOpenTelemetry enables tracing of fetches and preload batches.
func WithOpenTelemetry(cfg tracing.TracingConfig) Option {
	return func(c *config) { c.tracing = &cfg }
}

// WithViewport sets the visibility observer used to gate loads. Without it
// every element counts as visible immediately.
func WithViewport(o visibility.Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithRenderMargin sets how far outside the viewport renderers start loading.
func WithRenderMargin(px int) Option {
	return func(c *config) { c.renderMargin = px }
}

// WithPreloadDelay sets the pause before a preload batch is issued.
func WithPreloadDelay(d time.Duration) Option {
	return func(c *config) { c.preloadDelay = d }
}

// WithPreloadRateLimit paces preload requests.
func WithPreloadRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.preloadRPS = rps
		c.preloadBurst = burst
	}
}

// WithMemoryGuard supplies the host capabilities the memory guard listens
// to. Either may be nil.
func WithMemoryGuard(v guard.VisibilitySignal, s guard.MemorySampler) Option {
	return func(c *config) {
		c.visibility = v
		c.sampler = s
	}
}

// WithGuardInterval sets the heap sampling period.
func WithGuardInterval(d time.Duration) Option {
	return func(c *config) { c.guardInterval = d }
}

// WithGuardThreshold sets the used/limit ratio that clears the caches.
func WithGuardThreshold(r float64) Option {
	return func(c *config) { c.guardThreshold = r }
}

// WithListingProvider sets the source of upcoming listings.
func WithListingProvider(p listing.Provider) Option {
	return func(c *config) { c.provider = p }
}

// WithQueryCache keeps up to maxCost listing-query results next to the
// images. The memory guard clears both together.
func WithQueryCache(maxCost int64) Option {
	return func(c *config) { c.queryCacheCost = maxCost }
}

// WithQueryTTL sets how long listing-query results stay fresh.
func WithQueryTTL(d time.Duration) Option {
	return func(c *config) { c.queryTTL = d }
}
