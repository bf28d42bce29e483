// Package breaker stops image fetches from hammering a storage origin that is
// already failing.
//
// Each origin host gets its own breaker:
//   - Closed: fetches flow; consecutive failures are counted.
//   - Open: fetches fail fast with ErrOpen until OpenTimeout elapses.
//   - HalfOpen: probe fetches are let through; enough successes close the
//     breaker, any failure reopens it.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("breaker: origin circuit open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker parameters. Zero fields take the defaults below.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker. Default 5.
	FailureThreshold int

	// OpenTimeout is how long the breaker rejects calls before probing.
	// Default 30s.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of successful probes that closes the
	// breaker again. Default 1.
	HalfOpenMaxSuccess int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccess <= 0 {
		c.HalfOpenMaxSuccess = 1
	}
	return c
}

// Breaker guards a single origin. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int
	successes int
	openedAt  time.Time
	nowFunc   func() time.Time
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:     cfg.withDefaults(),
		state:   Closed,
		nowFunc: time.Now,
	}
}

// State returns the current state, moving Open to HalfOpen once the timeout
// has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

// Allow reports whether a fetch may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.successes < b.cfg.HalfOpenMaxSuccess
	default:
		return false
	}
}

// Do runs fn when the breaker allows it and records the outcome. It returns
// ErrOpen without calling fn otherwise.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.OnFailure()
		return err
	}
	b.OnSuccess()
	return nil
}

// OnSuccess records a successful fetch.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
}

// OnFailure records a failed fetch.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// checkOpenTimeout must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.successes = 0
}

// Set lazily creates one Breaker per origin host.
type Set struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
	nowFunc  func() time.Time
}

// NewSet creates a Set whose breakers share cfg.
func NewSet(cfg Config) *Set {
	return &Set{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
		nowFunc:  time.Now,
	}
}

// For returns the breaker for host, creating it on first use.
func (s *Set) For(host string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[host]; ok {
		return b
	}
	b := New(s.cfg)
	b.nowFunc = s.nowFunc
	s.breakers[host] = b
	return b
}
