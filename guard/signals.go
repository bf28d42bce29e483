package guard

import (
	"math"
	"runtime/debug"
	"runtime/metrics"
)

// HiddenFeed is a VisibilitySignal fed by the host's own visibility events.
// Hidden transitions that arrive while one is still undelivered coalesce.
type HiddenFeed struct {
	ch chan struct{}
}

// NewHiddenFeed creates an empty feed.
func NewHiddenFeed() *HiddenFeed {
	return &HiddenFeed{ch: make(chan struct{}, 1)}
}

// SetHidden records a transition to hidden. It never blocks.
func (f *HiddenFeed) SetHidden() {
	select {
	case f.ch <- struct{}{}:
	default:
	}
}

// Hidden implements VisibilitySignal.
func (f *HiddenFeed) Hidden() <-chan struct{} {
	return f.ch
}

const heapObjects = "/memory/classes/heap/objects:bytes"

// RuntimeSampler measures live heap objects against the Go runtime's soft
// memory limit. It reports ok=false when no limit is set.
type RuntimeSampler struct{}

// Sample implements MemorySampler.
func (RuntimeSampler) Sample() (used, limit uint64, ok bool) {
	l := debug.SetMemoryLimit(-1)
	if l <= 0 || l == math.MaxInt64 {
		return 0, 0, false
	}
	s := []metrics.Sample{{Name: heapObjects}}
	metrics.Read(s)
	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0, 0, false
	}
	return s[0].Value.Uint64(), uint64(l), true
}
