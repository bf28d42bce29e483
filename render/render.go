// Package render drives the presentation of one image element:
// Placeholder, then Loading once the element is near the viewport, then
// Shown or Failed. Shown and Failed are terminal for a Renderer; a new
// element instance gets a new Renderer.
package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Keksclan/goRawrGallery/cache"
	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/visibility"
	"github.com/rs/zerolog"
)

// ImageSource is the part of the image cache a Renderer needs.
type ImageSource interface {
	Request(ctx context.Context, key string) *cache.Future
}

// State is the presentation state of one element.
type State int

const (
	Placeholder State = iota
	Loading
	Shown
	Failed
)

func (s State) String() string {
	switch s {
	case Placeholder:
		return "placeholder"
	case Loading:
		return "loading"
	case Shown:
		return "shown"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s never changes again.
func (s State) Terminal() bool { return s == Shown || s == Failed }

// View is what the element should display right now.
type View struct {
	State  State
	Src    string
	Opaque bool
}

// ErrReleased is reported when the image was released again before it could
// be shown.
var ErrReleased = errors.New("render: image released before shown")

var errStopped = errors.New("render: stopped")

// DefaultFadeDelay is the pause between a successful decode and flipping the
// element to opaque.
const DefaultFadeDelay = 50 * time.Millisecond

// Renderer is safe for concurrent use.
type Renderer struct {
	url    string
	images ImageSource
	cfg    config
	logger zerolog.Logger

	mu      sync.Mutex
	view    View
	changes chan State
	ended   bool // changes is closed
	watch   *visibility.Watch

	start   sync.Once
	closeMu sync.Once
	closed  chan struct{}
	done    chan struct{}
}

// New creates a Renderer for the canonical url backed by images.
func New(url string, images ImageSource, opts ...Option) *Renderer {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	r := &Renderer{
		url:     url,
		images:  images,
		cfg:     cfg,
		logger:  cfg.logger.With().Str("component", "Renderer").Str("url", url).Logger(),
		changes: make(chan State, 4),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.view = View{State: Placeholder, Src: cfg.placeholder}
	return r
}

// Start begins the lifecycle. Without WithEager the load waits for the gate.
// A url that is empty or the placeholder itself has nothing to load and is
// shown at once. Cancelling ctx or calling Close before a terminal state stops
// the renderer where it is. Start is a no-op after the first call.
func (r *Renderer) Start(ctx context.Context) {
	r.start.Do(func() {
		if !r.static() && !r.cfg.eager && r.cfg.gate != nil {
			r.mu.Lock()
			r.watch = r.cfg.gate.Observe(r.cfg.element, r.cfg.marginPx)
			r.mu.Unlock()
		}
		go r.run(ctx)
	})
}

func (r *Renderer) static() bool {
	return r.url == "" || r.url == r.cfg.placeholder
}

func (r *Renderer) run(ctx context.Context) {
	defer close(r.done)

	if r.static() {
		h := decode.NewStatic(r.cfg.placeholder)
		if r.transition(View{State: Shown, Src: h.URL(), Opaque: true}) && r.cfg.onLoad != nil {
			r.cfg.onLoad(h)
		}
		return
	}

	r.mu.Lock()
	w := r.watch
	r.mu.Unlock()
	if w != nil {
		select {
		case <-w.Visible():
		case <-ctx.Done():
			w.Stop()
			return
		case <-r.closed:
			return
		}
	}

	src := r.cfg.placeholder
	if r.cfg.blurUp != "" {
		src = r.cfg.blurUp
	}
	r.transition(View{State: Loading, Src: src})

	h, err := r.load(ctx)
	if errors.Is(err, errStopped) {
		return
	}
	if err != nil {
		r.fail(err)
		return
	}

	if r.cfg.fadeDelay > 0 {
		t := time.NewTimer(r.cfg.fadeDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		}
	}
	if h.Released() {
		// Evicted during the fade; the cache fetches it again.
		r.logger.Debug().Msg("Image released before shown, requesting again.")
		if h, err = r.load(ctx); errors.Is(err, errStopped) {
			return
		}
		if err == nil && h.Released() {
			err = ErrReleased
		}
		if err != nil {
			r.fail(err)
			return
		}
	}
	if r.transition(View{State: Shown, Src: h.URL(), Opaque: true}) && r.cfg.onLoad != nil {
		r.cfg.onLoad(h)
	}
}

// load requests the image and runs the decode signal on it. It returns
// errStopped when ctx or Close ended the wait first.
func (r *Renderer) load(ctx context.Context) (*decode.Handle, error) {
	f := r.images.Request(ctx, r.url)
	select {
	case <-f.Done():
	case <-ctx.Done():
		return nil, errStopped
	case <-r.closed:
		return nil, errStopped
	}
	h, err := f.Result()
	if err == nil {
		err = r.cfg.decodeSignal(h)
	}
	if err != nil {
		r.logger.Debug().Err(err).Msg("Image failed to load.")
		return nil, err
	}
	return h, nil
}

func (r *Renderer) fail(err error) {
	if r.transition(View{State: Failed, Src: r.cfg.placeholder, Opaque: true}) && r.cfg.onError != nil {
		r.cfg.onError(err)
	}
}

// transition publishes v unless the renderer is closed or already terminal.
// It reports whether v was applied.
func (r *Renderer) transition(v View) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view.State.Terminal() || r.ended {
		return false
	}
	r.view = v
	select {
	case r.changes <- v.State:
	default:
	}
	if v.State.Terminal() {
		r.ended = true
		close(r.changes)
	}
	return true
}

// View returns what the element should display now.
func (r *Renderer) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// State is shorthand for View().State.
func (r *Renderer) State() State {
	return r.View().State
}

// Changes streams every state entered after Placeholder. It is closed after
// the terminal state or on Close.
func (r *Renderer) Changes() <-chan State {
	return r.changes
}

// Done is closed when the lifecycle goroutine has exited. It never closes if
// Start was not called.
func (r *Renderer) Done() <-chan struct{} {
	return r.done
}

// Close tears the renderer down, as on unmount. A pending visibility watch is
// disconnected and no callback fires afterwards. The image request itself is
// left to the cache.
func (r *Renderer) Close() {
	r.closeMu.Do(func() {
		close(r.closed)
		r.mu.Lock()
		w := r.watch
		if !r.ended {
			r.ended = true
			close(r.changes)
		}
		r.mu.Unlock()
		if w != nil {
			w.Stop()
		}
	})
}
