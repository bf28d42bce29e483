package render_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/goRawrGallery/cache"
	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/fetch"
	"github.com/Keksclan/goRawrGallery/render"
	"github.com/Keksclan/goRawrGallery/visibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imgURL = "https://gallery.example.com/storage/v1/object/public/a.jpg"

type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("jpeg"), nil
}

func newCache(f fetch.Fetcher) *cache.Cache {
	return cache.New(f, cache.WithDecoder(decode.PassthroughDecoder{}))
}

func waitDone(t *testing.T, r *render.Renderer) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("renderer did not finish")
	}
}

func collect(ch <-chan render.State) []render.State {
	var out []render.State
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestRenderer_EagerShows(t *testing.T) {
	c := newCache(&fakeFetcher{})
	var loads atomic.Int32
	r := render.New(imgURL, c,
		render.WithEager(),
		render.WithFadeDelay(time.Millisecond),
		render.OnLoad(func(*decode.Handle) { loads.Add(1) }),
		render.OnError(func(error) { t.Error("unexpected OnError") }),
	)
	assert.Equal(t, render.View{State: render.Placeholder, Src: "/placeholder.svg"}, r.View())

	r.Start(context.Background())
	r.Start(context.Background())
	waitDone(t, r)

	v := r.View()
	assert.Equal(t, render.Shown, v.State)
	assert.True(t, v.Opaque)
	assert.Contains(t, v.Src, "blob:https://gallery.example.com/")
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, []render.State{render.Loading, render.Shown}, collect(r.Changes()))
}

func TestRenderer_WaitsForVisibility(t *testing.T) {
	f := &fakeFetcher{}
	c := newCache(f)
	vp := visibility.NewViewport(400, 800)
	card := visibility.ID("card-7")
	vp.Place(card, visibility.Rect{Y: 3000, W: 200, H: 200})
	gate := visibility.NewGate(vp)

	r := render.New(imgURL, c, render.WithGate(gate, card, 200), render.WithFadeDelay(0))
	r.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, render.Placeholder, r.State())
	assert.Equal(t, int32(0), f.calls.Load())

	// Within the 200px margin but not yet on screen.
	vp.ScrollTo(2100)
	waitDone(t, r)

	assert.Equal(t, render.Shown, r.State())
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 0, vp.Observed())
}

func TestRenderer_FetchFailureShowsPlaceholder(t *testing.T) {
	boom := errors.New("404")
	c := newCache(&fakeFetcher{err: boom})
	var errs atomic.Int32
	var got error
	r := render.New(imgURL, c,
		render.WithEager(),
		render.WithPlaceholder("/img/missing.svg"),
		render.OnError(func(err error) { errs.Add(1); got = err }),
		render.OnLoad(func(*decode.Handle) { t.Error("unexpected OnLoad") }),
	)
	r.Start(context.Background())
	waitDone(t, r)

	assert.Equal(t, render.View{State: render.Failed, Src: "/img/missing.svg", Opaque: true}, r.View())
	assert.Equal(t, int32(1), errs.Load())
	assert.ErrorIs(t, got, boom)
	assert.ErrorIs(t, got, cache.ErrFetchFailed)
	assert.Equal(t, []render.State{render.Loading, render.Failed}, collect(r.Changes()))
}

func TestRenderer_DecodeSignalFailure(t *testing.T) {
	c := newCache(&fakeFetcher{})
	bad := errors.New("decode failed")
	r := render.New(imgURL, c,
		render.WithEager(),
		render.WithDecodeSignal(func(*decode.Handle) error { return bad }),
	)
	r.Start(context.Background())
	waitDone(t, r)

	assert.Equal(t, render.Failed, r.State())
}

func TestRenderer_BlurUpWhileLoading(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	c := newCache(f)
	r := render.New(imgURL, c,
		render.WithEager(),
		render.WithBlurUp("data:image/jpeg;base64,AAAA"),
		render.WithFadeDelay(0),
	)
	r.Start(context.Background())

	require.Equal(t, render.Loading, <-r.Changes())
	assert.Equal(t, render.View{State: render.Loading, Src: "data:image/jpeg;base64,AAAA"}, r.View())

	close(f.gate)
	waitDone(t, r)
	assert.Equal(t, render.Shown, r.State())
}

func TestRenderer_CloseBeforeVisible(t *testing.T) {
	f := &fakeFetcher{}
	c := newCache(f)
	vp := visibility.NewViewport(400, 800)
	card := visibility.ID("card")
	vp.Place(card, visibility.Rect{Y: 5000, W: 100, H: 100})

	r := render.New(imgURL, c, render.WithGate(visibility.NewGate(vp), card, 0))
	r.Start(context.Background())
	r.Close()
	r.Close()
	waitDone(t, r)

	vp.ScrollTo(5000)
	assert.Equal(t, render.Placeholder, r.State())
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, 0, vp.Observed())
	assert.Empty(t, collect(r.Changes()))
}

func TestRenderer_CancelDuringLoadLeavesFetchRunning(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	c := newCache(f)
	ctx, cancel := context.WithCancel(context.Background())

	r := render.New(imgURL, c, render.WithEager())
	r.Start(ctx)
	require.Equal(t, render.Loading, <-r.Changes())
	cancel()
	waitDone(t, r)
	assert.Equal(t, render.Loading, r.State())

	close(f.gate)
	h, err := c.Get(context.Background(), imgURL)
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, render.Placeholder.Terminal())
	assert.False(t, render.Loading.Terminal())
	assert.True(t, render.Shown.Terminal())
	assert.True(t, render.Failed.Terminal())
	assert.Equal(t, "shown", render.Shown.String())
}

func TestRenderer_EmptyURLShowsPlaceholderWithoutRequest(t *testing.T) {
	for _, url := range []string{"", "/img/none.svg"} {
		f := &fakeFetcher{}
		vp := visibility.NewViewport(400, 800)
		card := visibility.ID("no-photo")
		vp.Place(card, visibility.Rect{Y: 9000, W: 200, H: 200})

		var loads atomic.Int32
		r := render.New(url, newCache(f),
			render.WithGate(visibility.NewGate(vp), card, 0),
			render.WithPlaceholder("/img/none.svg"),
			render.OnLoad(func(h *decode.Handle) { loads.Add(1) }),
			render.OnError(func(error) { t.Error("unexpected OnError") }),
		)
		r.Start(context.Background())
		waitDone(t, r)

		assert.Equal(t, render.View{State: render.Shown, Src: "/img/none.svg", Opaque: true}, r.View(), "url %q", url)
		assert.Equal(t, []render.State{render.Shown}, collect(r.Changes()))
		assert.Equal(t, int32(1), loads.Load())
		assert.Equal(t, int32(0), f.calls.Load())
		assert.Equal(t, 0, vp.Observed())
	}
}

func TestRenderer_ReleasedDuringFadeIsRequestedAgain(t *testing.T) {
	f := &fakeFetcher{}
	c := newCache(f)
	var shown *decode.Handle
	r := render.New(imgURL, c,
		render.WithEager(),
		render.WithFadeDelay(200*time.Millisecond),
		render.OnLoad(func(h *decode.Handle) { shown = h }),
	)
	r.Start(context.Background())

	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.Clear())
	waitDone(t, r)

	require.Equal(t, render.Shown, r.State())
	require.NotNil(t, shown)
	assert.False(t, shown.Released())
	assert.Equal(t, shown.URL(), r.View().Src)
	assert.Equal(t, int32(2), f.calls.Load())
}
