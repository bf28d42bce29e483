// Package resolve turns the image references stored on listing records into
// the single canonical URL used as an image cache key.
//
// A reference may be empty, an absolute URL, a full storage path
// ("/storage/v1/object/public/photos/a.jpg") or a bare object key
// ("photos/a.jpg"). Every form that names the same object resolves to the same
// string, and resolving an already canonical URL returns it unchanged.
package resolve

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultPrefix is the public object route of the storage backend.
	DefaultPrefix = "/storage/v1/object/public/"

	// DefaultPlaceholder is served for listings without a usable image.
	DefaultPlaceholder = "/placeholder.svg"

	storageRoot = "/storage/"
)

// Config holds the static storage origin configuration.
type Config struct {
	// Origin is the scheme and host of the storage backend, for example
	// "https://abc.supabase.co". A trailing slash is ignored.
	Origin string

	// Prefix is prepended to bare object keys. Defaults to DefaultPrefix.
	Prefix string

	// Placeholder is returned for empty references. Defaults to
	// DefaultPlaceholder.
	Placeholder string
}

// Resolver normalizes image references. It holds no mutable state and is safe
// for concurrent use.
type Resolver struct {
	origin      string
	prefix      string
	placeholder string
}

// New validates cfg and returns a Resolver.
func New(cfg Config) (*Resolver, error) {
	u, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("resolve: invalid origin %q: %w", cfg.Origin, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("resolve: origin %q must be an absolute http(s) URL", cfg.Origin)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	return &Resolver{
		origin:      strings.TrimRight(cfg.Origin, "/"),
		prefix:      prefix,
		placeholder: placeholder,
	}, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config) *Resolver {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the canonical URL for path. The empty string stands in for
// a missing reference and yields the placeholder. Resolving a canonical URL,
// the placeholder included, returns it unchanged.
func (r *Resolver) Resolve(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "", path == r.placeholder:
		return r.placeholder
	case isAbsolute(path):
		return path
	case strings.HasPrefix(path, storageRoot):
		return r.origin + path
	default:
		return r.origin + r.prefix + strings.TrimPrefix(path, "/")
	}
}

// Placeholder returns the fixed asset used for missing or failed images.
func (r *Resolver) Placeholder() string {
	return r.placeholder
}

// IsPlaceholder reports whether canonical is the placeholder asset.
func (r *Resolver) IsPlaceholder(canonical string) bool {
	return canonical == r.placeholder
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
