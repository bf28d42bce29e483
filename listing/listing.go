// Package listing describes the entities whose images the grid shows. The
// core only reads them.
package listing

import (
	"context"
	"strings"
)

// Listing is one card in the grid.
type Listing struct {
	ID               string   `json:"id"`
	Title            string   `json:"title,omitempty"`
	PrimaryImagePath string   `json:"primary_image_path,omitempty"`
	GalleryPaths     []string `json:"gallery_paths,omitempty"`
}

// BestImagePath returns the primary image path or, failing that, the first
// non-empty gallery path.
func (l Listing) BestImagePath() (string, bool) {
	if strings.TrimSpace(l.PrimaryImagePath) != "" {
		return l.PrimaryImagePath, true
	}
	for _, p := range l.GalleryPaths {
		if strings.TrimSpace(p) != "" {
			return p, true
		}
	}
	return "", false
}

// Provider yields listings in display order.
type Provider interface {
	// Upcoming returns at most n listings following the one with ID after.
	// An empty after starts from the beginning.
	Upcoming(ctx context.Context, after string, n int) ([]Listing, error)
}

// SliceProvider serves a fixed, ordered set of listings.
type SliceProvider []Listing

// Upcoming implements Provider. An unknown after yields no listings.
func (p SliceProvider) Upcoming(ctx context.Context, after string, n int) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := 0
	if after != "" {
		start = -1
		for i, l := range p {
			if l.ID == after {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, nil
		}
	}
	if n <= 0 || start >= len(p) {
		return nil, nil
	}
	end := min(start+n, len(p))
	out := make([]Listing, end-start)
	copy(out, p[start:end])
	return out, nil
}
