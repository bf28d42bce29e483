package render

import (
	"time"

	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/Keksclan/goRawrGallery/resolve"
	"github.com/Keksclan/goRawrGallery/visibility"
	"github.com/rs/zerolog"
)

type config struct {
	gate         *visibility.Gate
	element      visibility.Element
	marginPx     int
	eager        bool
	decodeSignal func(*decode.Handle) error
	fadeDelay    time.Duration
	blurUp       string
	placeholder  string
	onLoad       func(*decode.Handle)
	onError      func(error)
	logger       zerolog.Logger
}

func defaultConfig() config {
	return config{
		decodeSignal: func(*decode.Handle) error { return nil },
		fadeDelay:    DefaultFadeDelay,
		placeholder:  resolve.DefaultPlaceholder,
		logger:       zerolog.Nop(),
	}
}

// Option configures a Renderer.
type Option func(*config)

// WithGate defers loading until el comes within marginPx of the viewport.
func WithGate(g *visibility.Gate, el visibility.Element, marginPx int) Option {
	return func(c *config) {
		c.gate = g
		c.element = el
		c.marginPx = marginPx
	}
}

// WithEager disables lazy loading: Start enters Loading immediately.
func WithEager() Option {
	return func(c *config) { c.eager = true }
}

// WithDecodeSignal installs the platform's decode check, run on the handle
// before the element is shown. A non-nil error fails the element.
func WithDecodeSignal(fn func(*decode.Handle) error) Option {
	return func(c *config) {
		if fn != nil {
			c.decodeSignal = fn
		}
	}
}

// WithFadeDelay sets the pause before the element turns opaque.
func WithFadeDelay(d time.Duration) Option {
	return func(c *config) { c.fadeDelay = d }
}

// WithBlurUp shows inline, typically a tiny data URL, while loading.
func WithBlurUp(inline string) Option {
	return func(c *config) { c.blurUp = inline }
}

// WithPlaceholder sets the fixed asset shown before loading and on failure.
func WithPlaceholder(src string) Option {
	return func(c *config) {
		if src != "" {
			c.placeholder = src
		}
	}
}

// OnLoad registers fn to run once when the element is shown.
func OnLoad(fn func(*decode.Handle)) Option {
	return func(c *config) { c.onLoad = fn }
}

// OnError registers fn to run once when the element fails.
func OnError(fn func(error)) Option {
	return func(c *config) { c.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}
