package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueryCache is the subset of querycache.Cache used by Cached.
type QueryCache interface {
	GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error)
}

// Cached wraps a Provider so identical Upcoming queries are answered from qc.
func Cached(p Provider, qc QueryCache, ttl time.Duration) Provider {
	return &cachedProvider{next: p, qc: qc, ttl: ttl}
}

type cachedProvider struct {
	next Provider
	qc   QueryCache
	ttl  time.Duration
}

func (c *cachedProvider) Upcoming(ctx context.Context, after string, n int) ([]Listing, error) {
	key := fmt.Sprintf("upcoming:%s:%d", after, n)
	raw, err := c.qc.GetOrSet(ctx, key, c.ttl, func(ctx context.Context) ([]byte, error) {
		ls, err := c.next.Upcoming(ctx, after, n)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ls)
	})
	if err != nil {
		return nil, err
	}
	var out []Listing
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode cached listings: %w", err)
	}
	return out, nil
}
