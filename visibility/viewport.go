package visibility

import (
	"sync"
	"sync/atomic"
)

// Rect is an element's layout box in document coordinates.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

func (r Rect) expand(m int) Rect {
	return Rect{X: r.X - m, Y: r.Y - m, W: r.W + 2*m, H: r.H + 2*m}
}

type observation struct {
	el     Element
	margin int
	fn     func(Entry)
	last   bool
	active atomic.Bool
}

// Viewport is an Observer driven by explicit layout and scroll updates.
// Elements that were never placed do not intersect. Callbacks run on the
// goroutine that caused the change, outside the viewport's lock.
type Viewport struct {
	mu     sync.Mutex
	bounds Rect
	rects  map[Element]Rect
	obs    map[*observation]struct{}
}

// NewViewport creates a viewport of width by height at scroll offset 0,0.
func NewViewport(width, height int) *Viewport {
	return &Viewport{
		bounds: Rect{W: width, H: height},
		rects:  make(map[Element]Rect),
		obs:    make(map[*observation]struct{}),
	}
}

type delivery struct {
	o *observation
	e Entry
}

// Observe implements Observer. The initial state is delivered before Observe
// returns.
func (v *Viewport) Observe(el Element, marginPx int, fn func(Entry)) func() {
	o := &observation{el: el, margin: marginPx, fn: fn}
	o.active.Store(true)

	v.mu.Lock()
	v.obs[o] = struct{}{}
	o.last = v.visibleLocked(o)
	d := []delivery{{o: o, e: Entry{Element: el, Intersecting: o.last}}}
	v.mu.Unlock()

	v.dispatch(d)

	return func() {
		o.active.Store(false)
		v.mu.Lock()
		delete(v.obs, o)
		v.mu.Unlock()
	}
}

// Place sets or moves the layout box of el.
func (v *Viewport) Place(el Element, r Rect) {
	v.update(func() { v.rects[el] = r })
}

// Remove forgets the layout box of el, as when it leaves the document.
func (v *Viewport) Remove(el Element) {
	v.update(func() { delete(v.rects, el) })
}

// ScrollTo moves the viewport's top edge to y.
func (v *Viewport) ScrollTo(y int) {
	v.update(func() { v.bounds.Y = y })
}

// Resize changes the viewport's dimensions.
func (v *Viewport) Resize(width, height int) {
	v.update(func() { v.bounds.W, v.bounds.H = width, height })
}

// Observed returns the number of live observations.
func (v *Viewport) Observed() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.obs)
}

func (v *Viewport) update(mutate func()) {
	v.mu.Lock()
	mutate()
	var ds []delivery
	for o := range v.obs {
		now := v.visibleLocked(o)
		if now != o.last {
			o.last = now
			ds = append(ds, delivery{o: o, e: Entry{Element: o.el, Intersecting: now}})
		}
	}
	v.mu.Unlock()

	v.dispatch(ds)
}

func (v *Viewport) visibleLocked(o *observation) bool {
	r, ok := v.rects[o.el]
	if !ok {
		return false
	}
	return r.intersects(v.bounds.expand(o.margin))
}

func (v *Viewport) dispatch(ds []delivery) {
	for _, d := range ds {
		if d.o.active.Load() {
			d.o.fn(d.e)
		}
	}
}
