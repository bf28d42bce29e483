package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mustNew(t *testing.T) *Cache {
	t.Helper()
	c, err := New(1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := mustNew(t)
	ctx := t.Context()

	if _, ok := c.Get(ctx, "upcoming:0"); ok {
		t.Fatal("expected miss")
	}

	c.Set(ctx, "upcoming:0", []byte(`[{"id":"1"}]`), 0)
	val, ok := c.Get(ctx, "upcoming:0")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(val) != `[{"id":"1"}]` {
		t.Fatalf("got %q", val)
	}

	// Returned slices are copies.
	val[0] = 'X'
	again, _ := c.Get(ctx, "upcoming:0")
	if again[0] != '[' {
		t.Fatal("stored value was mutated through returned slice")
	}
}

func TestGetOrSet_LoaderCalledOnce(t *testing.T) {
	c := mustNew(t)
	ctx := t.Context()

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(_ context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("loaded"), nil
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrSet(ctx, "k", time.Minute, loader)
			if err != nil {
				t.Errorf("GetOrSet: %v", err)
				return
			}
			if string(v) != "loaded" {
				t.Errorf("got %q, want %q", v, "loaded")
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
}

func TestGetOrSet_FailureNotCached(t *testing.T) {
	c := mustNew(t)
	ctx := t.Context()
	boom := errors.New("provider unavailable")

	var calls atomic.Int32
	_, err := c.GetOrSet(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	v, err := c.GetOrSet(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("GetOrSet retry: %v", err)
	}
	if string(v) != "ok" {
		t.Fatalf("got %q", v)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("loader called %d times, want 2", n)
	}
}

func TestTTLExpires(t *testing.T) {
	c := mustNew(t)
	ctx := t.Context()

	c.Set(ctx, "ttl", []byte("temp"), 50*time.Millisecond)
	if _, ok := c.Get(ctx, "ttl"); !ok {
		t.Fatal("expected hit before TTL")
	}

	// Ristretto cleanup may need a bit of extra time.
	time.Sleep(200 * time.Millisecond)

	if _, ok := c.Get(ctx, "ttl"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := mustNew(t)
	ctx := t.Context()

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	c.Set(ctx, "c", []byte("3"), 0)

	c.Delete("a")
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("expected a to be deleted")
	}
	if n := c.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}

	if n := c.Clear(); n != 2 {
		t.Fatalf("Clear = %d, want 2", n)
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("expected miss after Clear")
	}
	if n := c.Len(); n != 0 {
		t.Fatalf("Len after Clear = %d, want 0", n)
	}
	if n := c.Clear(); n != 0 {
		t.Fatalf("second Clear = %d, want 0", n)
	}
}

func TestEachResultCostsOne(t *testing.T) {
	c, err := New(100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	ctx := t.Context()

	const k = 20
	for i := range k {
		c.Set(ctx, fmt.Sprintf("upcoming:%d:20", i), []byte(`[{"id":"1","title":"Loft"}]`), 0)
	}
	if n := c.Len(); n != k {
		t.Fatalf("Len = %d, want %d", n, k)
	}
	for i := range k {
		if _, ok := c.Get(ctx, fmt.Sprintf("upcoming:%d:20", i)); !ok {
			t.Fatalf("page %d was evicted below maxCost", i)
		}
	}
}
