// Package visibility defers work until an element is near the viewport.
//
// The platform side is the Observer contract; Viewport is a geometric
// implementation for hosts that know element positions themselves and for
// tests. Gate turns an Observer into one-shot "became visible" triggers.
package visibility

// Element identifies a rendered element. Implementations must be comparable.
type Element interface {
	ElementID() string
}

// ID is the simplest Element.
type ID string

// ElementID implements Element.
func (id ID) ElementID() string { return string(id) }

// Entry reports an intersection change for one element.
type Entry struct {
	Element      Element
	Intersecting bool
}

// Observer watches elements against the viewport expanded by marginPx on
// every side. fn receives the initial state and each change after it. No
// callback is delivered once disconnect has returned.
type Observer interface {
	Observe(el Element, marginPx int, fn func(Entry)) (disconnect func())
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(el Element, marginPx int, fn func(Entry)) func()

// Observe calls f.
func (f ObserverFunc) Observe(el Element, marginPx int, fn func(Entry)) func() {
	return f(el, marginPx, fn)
}
