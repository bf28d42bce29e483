// Package fetch downloads raw image payloads for the image cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Keksclan/goRawrGallery/breaker"
	"github.com/jmgilman/go/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBytes caps a single image body.
const DefaultMaxBytes int64 = 20 << 20

const defaultUserAgent = "goRawrGallery/1.0"

// Fetcher retrieves the raw bytes behind a canonical image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HttpClient is the subset of *http.Client the fetcher needs.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c HttpClient) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithMaxBytes caps the accepted body size. Values <= 0 keep the default.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

// WithBreaker enables a per-host circuit breaker.
func WithBreaker(cfg breaker.Config) Option {
	return func(f *HTTPFetcher) { f.breakers = breaker.NewSet(cfg) }
}

// HTTPFetcher fetches images over HTTP.
type HTTPFetcher struct {
	client    HttpClient
	maxBytes  int64
	userAgent string
	breakers  *breaker.Set
}

// NewHTTP returns an HTTPFetcher. Without WithHTTPClient it uses a client whose
// transport emits an OpenTelemetry span per request.
func NewHTTP(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		maxBytes:  DefaultMaxBytes,
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		f.client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.breakers == nil {
		return f.do(ctx, rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeInvalidInput, "invalid image url"), "url", rawURL)
	}

	var (
		body     []byte
		fetchErr error
	)
	err = f.breakers.For(u.Host).Do(func() error {
		body, fetchErr = f.do(ctx, rawURL)
		// Permanent failures (404, bad payload) say nothing about origin health.
		if fetchErr != nil && errors.IsRetryable(fetchErr) {
			return fetchErr
		}
		return nil
	})
	if errors.Is(err, breaker.ErrOpen) {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeUnavailable, "origin temporarily disabled"), "url", rawURL)
	}
	return body, fetchErr
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeInvalidInput, "failed to create request"), "url", rawURL)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeNetwork, "failed to send request"), "url", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		perr := errors.New(statusCode(resp.StatusCode), fmt.Sprintf("unexpected status %d", resp.StatusCode))
		perr = errors.WithContext(perr, "url", rawURL)
		return nil, errors.WithContext(perr, "status", strconv.Itoa(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeNetwork, "failed to read response body"), "url", rawURL)
	}
	if int64(len(body)) > f.maxBytes {
		perr := errors.Newf(errors.CodeInvalidInput, "image exceeds %d bytes", f.maxBytes)
		return nil, errors.WithContext(perr, "url", rawURL)
	}
	return body, nil
}

func statusCode(status int) errors.ErrorCode {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return errors.CodeNotFound
	case status == http.StatusTooManyRequests:
		return errors.CodeRateLimit
	case status == http.StatusUnauthorized:
		return errors.CodeUnauthorized
	case status == http.StatusForbidden:
		return errors.CodeForbidden
	case status >= 500:
		return errors.CodeUnavailable
	default:
		return errors.CodeInvalidInput
	}
}
