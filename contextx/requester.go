// Package contextx carries the tags that say who asked for an image. The tags
// end up as log fields and span attributes; they never change cache behavior.
package contextx

import "context"

// Well-known requesters.
const (
	RequesterGrid    = "grid"
	RequesterPreload = "preload"
	RequesterRender  = "render"
)

// WithRequester returns a derived context naming the component that requested
// an image.
func WithRequester(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, requesterKey, name)
}

// RequesterFromContext returns the requester stored in ctx, or "".
func RequesterFromContext(ctx context.Context) string {
	r, _ := ctx.Value(requesterKey).(string)
	return r
}

// WithListingID returns a derived context carrying the listing an image
// belongs to.
func WithListingID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, listingIDKey, id)
}

// ListingIDFromContext returns the listing ID stored in ctx, or "".
func ListingIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(listingIDKey).(string)
	return id
}
