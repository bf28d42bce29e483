package cache

import (
	"context"

	"github.com/Keksclan/goRawrGallery/decode"
)

// Status describes where a key stands in the cache.
type Status int

const (
	// StatusAbsent means no entry exists; the next Request starts a fetch.
	StatusAbsent Status = iota
	StatusPending
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is a point-in-time view of a request.
type Result struct {
	Status Status
	Handle *decode.Handle
	Err    error
}

// call is one in-flight fetch. handle and err are written once, before done
// is closed, and only read after.
type call struct {
	done   chan struct{}
	handle *decode.Handle
	err    error
}

func newCall() *call {
	return &call{done: make(chan struct{})}
}

func settledCall(h *decode.Handle, err error) *call {
	c := &call{done: make(chan struct{}), handle: h, err: err}
	close(c.done)
	return c
}

// Future is the shared, settle-once outcome of a Request. Every Future
// obtained for the same in-flight fetch observes the same handle or the same
// error.
type Future struct {
	c *call
}

// Done is closed once the request has settled.
func (f *Future) Done() <-chan struct{} {
	return f.c.done
}

// Wait blocks until the request settles or ctx is done. Abandoning the wait
// does not cancel the fetch.
func (f *Future) Wait(ctx context.Context) (*decode.Handle, error) {
	select {
	case <-f.c.done:
		return f.c.handle, f.c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. While pending it returns
// (nil, nil).
func (f *Future) Result() (*decode.Handle, error) {
	select {
	case <-f.c.done:
		return f.c.handle, f.c.err
	default:
		return nil, nil
	}
}

// Status reports Pending, Resolved or Failed.
func (f *Future) Status() Status {
	select {
	case <-f.c.done:
		if f.c.err != nil {
			return StatusFailed
		}
		return StatusResolved
	default:
		return StatusPending
	}
}

// Snapshot returns the current Result.
func (f *Future) Snapshot() Result {
	select {
	case <-f.c.done:
		if f.c.err != nil {
			return Result{Status: StatusFailed, Err: f.c.err}
		}
		return Result{Status: StatusResolved, Handle: f.c.handle}
	default:
		return Result{Status: StatusPending}
	}
}
