package fetch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Middleware transforms a Fetcher, allowing pre/post behavior composition.
type Middleware func(Fetcher) Fetcher

// Chain composes middlewares from left to right, i.e., Chain(A, B)(f) => A(B(f)).
func Chain(mw ...Middleware) Middleware {
	return func(next Fetcher) Fetcher {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Wrap applies the middleware chain to f and returns the wrapped Fetcher.
func Wrap(f Fetcher, mw ...Middleware) Fetcher {
	if len(mw) == 0 {
		return f
	}
	return Chain(mw...)(f)
}

// Logging logs every fetch at Debug, and failures at Warn.
func Logging(l zerolog.Logger) Middleware {
	l = l.With().Str("component", "Fetcher").Logger()
	return func(next Fetcher) Fetcher {
		return FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
			start := time.Now()
			body, err := next.Fetch(ctx, url)
			if err != nil {
				l.Warn().Err(err).Str("url", url).Dur("took", time.Since(start)).Msg("Fetch failed.")
				return nil, err
			}
			l.Debug().Str("url", url).Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("Fetched image.")
			return body, nil
		})
	}
}
