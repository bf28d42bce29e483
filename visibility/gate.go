package visibility

import "sync"

// State is the lifecycle of one Watch.
type State int

const (
	NotObserved State = iota
	Observed
	Intersecting
	Disconnected
)

func (s State) String() string {
	switch s {
	case NotObserved:
		return "not-observed"
	case Observed:
		return "observed"
	case Intersecting:
		return "intersecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Gate hands out one-shot visibility triggers. A Gate without an Observer
// treats every element as visible as soon as it is observed.
type Gate struct {
	observer Observer
}

// NewGate creates a Gate on top of o.
func NewGate(o Observer) *Gate {
	return &Gate{observer: o}
}

// Watch is a single element's trigger. It fires at most once; after the first
// intersection the underlying observation is disconnected.
type Watch struct {
	mu         sync.Mutex
	state      State
	visible    chan struct{}
	disconnect func()
	// pending is set when the first intersection arrives before Observe has
	// returned the disconnect func.
	pending bool
	fn      func()
}

// Observe starts watching el with marginPx of look-ahead.
func (g *Gate) Observe(el Element, marginPx int) *Watch {
	return g.observe(el, marginPx, nil)
}

// OnVisible calls fn once when el first comes within marginPx of the
// viewport. stop cancels the trigger if it has not fired.
func (g *Gate) OnVisible(el Element, marginPx int, fn func()) (stop func()) {
	return g.observe(el, marginPx, fn).Stop
}

func (g *Gate) observe(el Element, marginPx int, fn func()) *Watch {
	w := &Watch{visible: make(chan struct{}), fn: fn}
	if g == nil || g.observer == nil {
		w.fire()
		return w
	}

	disconnect := g.observer.Observe(el, marginPx, w.onEntry)

	w.mu.Lock()
	if w.pending {
		w.pending = false
		w.mu.Unlock()
		disconnect()
		return w
	}
	w.state = Observed
	w.disconnect = disconnect
	w.mu.Unlock()
	return w
}

func (w *Watch) onEntry(e Entry) {
	if !e.Intersecting {
		return
	}
	w.mu.Lock()
	if w.state == Intersecting || w.state == Disconnected {
		w.mu.Unlock()
		return
	}
	disconnect := w.disconnect
	w.disconnect = nil
	if disconnect == nil {
		w.pending = true
	}
	w.mu.Unlock()

	if disconnect != nil {
		disconnect()
	}
	w.fire()
}

// fire moves the watch to Intersecting and runs its callback.
func (w *Watch) fire() {
	w.mu.Lock()
	if w.state == Intersecting || w.state == Disconnected {
		w.mu.Unlock()
		return
	}
	w.state = Intersecting
	close(w.visible)
	fn := w.fn
	w.fn = nil
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// State returns the current state.
func (w *Watch) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Visible is closed on the first intersection. It is never closed if the
// watch is stopped first.
func (w *Watch) Visible() <-chan struct{} {
	return w.visible
}

// Stop disconnects the watch if it has not fired yet. It is safe to call
// more than once.
func (w *Watch) Stop() {
	w.mu.Lock()
	if w.state == Intersecting || w.state == Disconnected {
		w.mu.Unlock()
		return
	}
	w.state = Disconnected
	w.fn = nil
	disconnect := w.disconnect
	w.disconnect = nil
	w.mu.Unlock()

	if disconnect != nil {
		disconnect()
	}
}
