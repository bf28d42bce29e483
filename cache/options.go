package cache

import (
	"time"

	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/tracing"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxEntries bounds the number of resolved images.
	DefaultMaxEntries = 200

	// DefaultFetchTimeout bounds a single fetch plus decode.
	DefaultFetchTimeout = 30 * time.Second
)

// config holds the internal configuration assembled via functional options.
type config struct {
	maxEntries   int
	maxBytes     int64
	fetchTimeout time.Duration
	decoder      decode.Decoder
	logger       zerolog.Logger
	metrics      *Metrics
	tracing      *tracing.TracingConfig
}

func defaultConfig() config {
	return config{
		maxEntries:   DefaultMaxEntries,
		fetchTimeout: DefaultFetchTimeout,
		decoder:      decode.ImageDecoder{},
		logger:       zerolog.Nop(),
	}
}

// Option configures a Cache.
type Option func(*config)

// WithMaxEntries bounds the number of resolved images. n <= 0 disables the
// bound.
func WithMaxEntries(n int) Option {
	return func(c *config) { c.maxEntries = n }
}

// WithMaxBytes bounds the estimated bytes held by resolved images. n <= 0
// disables the bound. An image larger than the bound is handed to its
// requesters but never stored.
func WithMaxBytes(n int64) Option {
	return func(c *config) { c.maxBytes = n }
}

// WithFetchTimeout bounds one fetch plus decode. d <= 0 disables the timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) { c.fetchTimeout = d }
}

// WithDecoder replaces the default header-validating decoder.
func WithDecoder(d decode.Decoder) Option {
	return func(c *config) {
		if d != nil {
			c.decoder = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracing enables OpenTelemetry spans around fetches.
func WithTracing(cfg *tracing.TracingConfig) Option {
	return func(c *config) { c.tracing = cfg }
}
