package cache

import (
	"errors"
	"fmt"
)

// ErrFetchFailed matches every fetch or decode failure reported by the cache.
var ErrFetchFailed = errors.New("imagecache: fetch failed")

// FetchError is delivered to every joiner of a failed fetch. It matches
// ErrFetchFailed and unwraps to the underlying cause.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("imagecache: fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// panicError wraps a value recovered from a panicking fetcher or decoder.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic during fetch: %v", e.value)
}
