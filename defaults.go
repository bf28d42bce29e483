package gorawrgallery

import (
	"time"

	"github.com/Keksclan/goRawrGallery/breaker"
	"github.com/Keksclan/goRawrGallery/guard"
)

const (
	// DefaultRenderMargin is the look-ahead, in pixels, before a card loads.
	DefaultRenderMargin = 200

	// DefaultQueryTTL bounds how long a listing query result is reused.
	DefaultQueryTTL = time.Minute
)

// DefaultOptions returns the recommended set of options for production use:
// a per-host breaker, a query cache for listing pages, and the Go runtime as
// memory sampler.
func DefaultOptions() []Option {
	return []Option{
		WithBreaker(breaker.Config{}),
		WithQueryCache(1_000),
		WithMemoryGuard(nil, guard.RuntimeSampler{}),
	}
}
