// Package decode converts fetched image payloads into local handles.
//
// A Handle plays the role of an object URL backed by decoded bytes: it is the
// thing a card actually displays, it is owned by whoever stored it, and it is
// revoked with Release once it is evicted.
package decode

import (
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// Handle is a locally displayable image.
type Handle struct {
	url    string
	source string
	format string
	width  int
	height int
	size   int64

	mu       sync.Mutex
	bytes    []byte
	released bool
	detached bool
}

// NewHandle builds a Handle for payload fetched from source. The payload is
// not copied; callers must not modify it afterwards.
func NewHandle(source string, payload []byte, format string, width, height int) *Handle {
	return &Handle{
		url:    objectURL(source),
		source: source,
		format: format,
		width:  width,
		height: height,
		size:   int64(len(payload)),
		bytes:  payload,
	}
}

// NewStatic returns a detached Handle that displays src as-is, for assets
// such as the placeholder that are never fetched or cached.
func NewStatic(src string) *Handle {
	return &Handle{url: src, source: src, detached: true}
}

// objectURL mints a blob-style URL scoped to the origin of source.
func objectURL(source string) string {
	origin := "null"
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Host != "" {
		origin = u.Scheme + "://" + u.Host
	}
	return "blob:" + origin + "/" + uuid.NewString()
}

// URL returns the local object URL.
func (h *Handle) URL() string { return h.url }

// Source returns the canonical URL the image was fetched from.
func (h *Handle) Source() string { return h.source }

// Format returns the detected image format, or "" when unknown.
func (h *Handle) Format() string { return h.format }

// Width returns the decoded width in pixels, or 0 when unknown.
func (h *Handle) Width() int { return h.width }

// Height returns the decoded height in pixels, or 0 when unknown.
func (h *Handle) Height() int { return h.height }

// Size returns the byte estimate used for cache accounting. It does not change
// after Release.
func (h *Handle) Size() int64 { return h.size }

// Bytes returns the backing payload, or nil once the handle is released.
func (h *Handle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytes
}

// Release revokes the handle and drops its bytes. It is safe to call more
// than once.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bytes = nil
	h.released = true
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Detach marks the handle as not owned by any cache. A detached handle is
// never revoked by eviction; it is reclaimed once its holders drop it.
func (h *Handle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detached = true
}

// Detached reports whether the handle was delivered without being cached.
func (h *Handle) Detached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detached
}
