package gorawrgallery

import (
	"time"

	"github.com/Keksclan/goRawrGallery/breaker"
	"github.com/Keksclan/goRawrGallery/cache"
	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/fetch"
	"github.com/Keksclan/goRawrGallery/guard"
	"github.com/Keksclan/goRawrGallery/listing"
	"github.com/Keksclan/goRawrGallery/preload"
	"github.com/Keksclan/goRawrGallery/tracing"
	"github.com/Keksclan/goRawrGallery/visibility"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	origin      string
	prefix      string
	placeholder string

	maxEntries   int
	maxBytes     int64
	fetchTimeout time.Duration

	fetcher    fetch.Fetcher
	decoder    decode.Decoder
	httpClient fetch.HttpClient
	breaker    *breaker.Config
	middleware []fetch.Middleware

	logger     zerolog.Logger
	registerer prometheus.Registerer
	tracing    *tracing.TracingConfig

	observer     visibility.Observer
	renderMargin int

	preloadDelay time.Duration
	preloadRPS   float64
	preloadBurst int

	visibility     guard.VisibilitySignal
	sampler        guard.MemorySampler
	guardInterval  time.Duration
	guardThreshold float64

	provider       listing.Provider
	queryCacheCost int64
	queryTTL       time.Duration
}

func defaultConfig() config {
	return config{
		maxEntries:   cache.DefaultMaxEntries,
		fetchTimeout: cache.DefaultFetchTimeout,
		logger:       zerolog.Nop(),
		renderMargin: DefaultRenderMargin,
		preloadDelay: preload.DefaultDelay,
		queryTTL:     DefaultQueryTTL,
	}
}
