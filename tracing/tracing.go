// Package tracing provides the OpenTelemetry spans emitted by the image cache
// and preloader. It is entirely optional: a nil *TracingConfig produces no-op
// spans.
package tracing

import (
	"context"

	"github.com/Keksclan/goRawrGallery/contextx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/Keksclan/goRawrGallery/tracing"

// TracingConfig holds the OpenTelemetry configuration.
type TracingConfig struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider
}

// tracer returns the configured tracer, or a no-op tracer when c is nil.
func (c *TracingConfig) tracer() trace.Tracer {
	if c == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// StartFetch opens the span covering one de-duplicated image fetch.
func (c *TracingConfig) StartFetch(ctx context.Context, url string) (context.Context, trace.Span) {
	ctx, span := c.tracer().Start(ctx, "imagecache.fetch", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("image.url", url))
	annotate(ctx, span)
	return ctx, span
}

// StartPreload opens the span covering one preload batch of n images.
func (c *TracingConfig) StartPreload(ctx context.Context, n int) (context.Context, trace.Span) {
	ctx, span := c.tracer().Start(ctx, "imagecache.preload")
	span.SetAttributes(attribute.Int("preload.count", n))
	annotate(ctx, span)
	return ctx, span
}

// annotate copies the requester tags carried by ctx onto span.
func annotate(ctx context.Context, span trace.Span) {
	if r := contextx.RequesterFromContext(ctx); r != "" {
		span.SetAttributes(attribute.String("image.requester", r))
	}
	if id := contextx.ListingIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("listing.id", id))
	}
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Discarded marks a fetch whose result arrived after its entry was evicted.
func Discarded(span trace.Span) {
	span.SetAttributes(attribute.Bool("image.discarded", true))
}
