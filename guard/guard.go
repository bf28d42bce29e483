// Package guard releases cached images under memory pressure. It clears its
// caches when the host reports that the app went to the background, and when
// a periodic heap sample crosses a threshold. With neither capability it does
// nothing.
package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned by Run while another Run is active on the
// same Guard.
var ErrAlreadyRunning = errors.New("guard: already running")

const (
	// DefaultInterval is the heap sampling period.
	DefaultInterval = 30 * time.Second

	// DefaultThreshold is the used/limit ratio above which caches are cleared.
	DefaultThreshold = 0.9
)

// VisibilitySignal delivers one value per transition to hidden.
type VisibilitySignal interface {
	Hidden() <-chan struct{}
}

// MemorySampler reports current heap usage against its limit. ok is false
// when the platform cannot tell.
type MemorySampler interface {
	Sample() (used, limit uint64, ok bool)
}

// SamplerFunc adapts a function to the MemorySampler interface.
type SamplerFunc func() (used, limit uint64, ok bool)

// Sample calls f.
func (f SamplerFunc) Sample() (uint64, uint64, bool) { return f() }

// Clearer is a cache the guard can empty. Clear returns the number of items
// dropped.
type Clearer interface {
	Clear() int
}

// ClearerFunc adapts a function to the Clearer interface.
type ClearerFunc func() int

// Clear calls f.
func (f ClearerFunc) Clear() int { return f() }

type config struct {
	visibility VisibilitySignal
	sampler    MemorySampler
	interval   time.Duration
	threshold  float64
	logger     zerolog.Logger
	newTicker  func(time.Duration) (<-chan time.Time, func())
}

// Option configures a Guard.
type Option func(*config)

// WithVisibility enables clearing on hidden transitions.
func WithVisibility(v VisibilitySignal) Option {
	return func(c *config) { c.visibility = v }
}

// WithSampler enables periodic heap sampling.
func WithSampler(s MemorySampler) Option {
	return func(c *config) { c.sampler = s }
}

// WithInterval sets the sampling period. d <= 0 keeps the default.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithThreshold sets the used/limit ratio that triggers a clear. Values
// outside (0, 1] keep the default.
func WithThreshold(r float64) Option {
	return func(c *config) {
		if r > 0 && r <= 1 {
			c.threshold = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Guard watches the host and clears caches. Run it once per process.
type Guard struct {
	clearers []Clearer
	cfg      config
	logger   zerolog.Logger

	running atomic.Bool
	clears  atomic.Uint64
}

// New creates a Guard over clearers.
func New(clearers []Clearer, opts ...Option) *Guard {
	cfg := config{
		interval:  DefaultInterval,
		threshold: DefaultThreshold,
		logger:    zerolog.Nop(),
		newTicker: realTicker,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Guard{
		clearers: append([]Clearer(nil), clearers...),
		cfg:      cfg,
		logger:   cfg.logger.With().Str("component", "MemoryGuard").Logger(),
	}
}

// Run watches until ctx is done and then returns nil.
func (g *Guard) Run(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer g.running.Store(false)

	var hidden <-chan struct{}
	if g.cfg.visibility != nil {
		hidden = g.cfg.visibility.Hidden()
	}
	var tick <-chan time.Time
	if g.cfg.sampler != nil {
		ch, stop := g.cfg.newTicker(g.cfg.interval)
		defer stop()
		tick = ch
	}
	if hidden == nil && tick == nil {
		g.logger.Debug().Msg("No visibility or memory signal available, guard idle.")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hidden:
			g.ClearAll("hidden")
		case <-tick:
			g.sample()
		}
	}
}

func (g *Guard) sample() {
	used, limit, ok := g.cfg.sampler.Sample()
	if !ok || limit == 0 {
		return
	}
	ratio := float64(used) / float64(limit)
	if ratio > g.cfg.threshold {
		g.logger.Info().Uint64("used", used).Uint64("limit", limit).Float64("ratio", ratio).Msg("Memory pressure, clearing caches.")
		g.ClearAll("memory")
	}
}

// ClearAll empties every cache and returns the total number of items
// dropped.
func (g *Guard) ClearAll(reason string) int {
	total := 0
	for _, c := range g.clearers {
		total += c.Clear()
	}
	g.clears.Add(1)
	g.logger.Info().Str("reason", reason).Int("released", total).Msg("Caches cleared.")
	return total
}

// Clears returns how many times ClearAll has run.
func (g *Guard) Clears() uint64 {
	return g.clears.Load()
}
