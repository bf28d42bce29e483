package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGallery/ratelimit"
)

func TestLimiter_AllowUnderLimit(t *testing.T) {
	// burst=5 means the first 5 calls must succeed.
	l := ratelimit.NewLimiter(1, 5)
	for i := range 5 {
		if !l.Allow() {
			t.Fatalf("expected Allow() == true for request %d", i)
		}
	}
}

func TestLimiter_BlocksWhenBurstExhausted(t *testing.T) {
	// burst=2, very low rps so tokens don't refill during the test.
	l := ratelimit.NewLimiter(0.001, 2)

	l.Allow()
	l.Allow()

	if l.Allow() {
		t.Fatal("expected Allow() == false after burst exhausted")
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := ratelimit.NewLimiter(0.001, 1)
	if err := l.Wait(t.Context()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected Wait to fail once the burst is spent")
	}
}

func TestLimiter_NilAlwaysAllows(t *testing.T) {
	l := ratelimit.NewLimiter(0, 0)
	if l != nil {
		t.Fatal("expected nil limiter for rps <= 0")
	}
	for range 100 {
		if !l.Allow() {
			t.Fatal("nil limiter must allow")
		}
	}
	if err := l.Wait(t.Context()); err != nil {
		t.Fatalf("nil limiter Wait: %v", err)
	}
}
