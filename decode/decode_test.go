package decode_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/Keksclan/goRawrGallery/decode"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageDecoder_ReadsHeader(t *testing.T) {
	payload := pngBytes(t, 4, 3)

	h, err := decode.ImageDecoder{}.Decode("https://img.example.com/a.png", payload)
	require.NoError(t, err)

	assert.Equal(t, "png", h.Format())
	assert.Equal(t, 4, h.Width())
	assert.Equal(t, 3, h.Height())
	assert.Equal(t, int64(len(payload)), h.Size())
	assert.Equal(t, "https://img.example.com/a.png", h.Source())
	assert.True(t, strings.HasPrefix(h.URL(), "blob:https://img.example.com/"), h.URL())
}

func TestImageDecoder_RejectsGarbage(t *testing.T) {
	_, err := decode.ImageDecoder{}.Decode("https://img.example.com/a.png", []byte("<html>nope</html>"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = decode.ImageDecoder{}.Decode("https://img.example.com/a.png", nil)
	require.Error(t, err)
}

func TestPassthroughDecoder(t *testing.T) {
	h, err := decode.PassthroughDecoder{}.Decode("/placeholder.svg", []byte("abc"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h.URL(), "blob:null/"))

	_, err = decode.PassthroughDecoder{}.Decode("/placeholder.svg", nil)
	require.Error(t, err)
}

func TestHandle_Release(t *testing.T) {
	h := decode.NewHandle("https://img.example.com/a.png", []byte("abc"), "", 0, 0)
	require.Equal(t, []byte("abc"), h.Bytes())

	h.Release()
	h.Release()

	assert.True(t, h.Released())
	assert.Nil(t, h.Bytes())
	assert.Equal(t, int64(3), h.Size(), "size estimate survives release")
}

func TestHandle_UniqueURLs(t *testing.T) {
	a := decode.NewHandle("https://img.example.com/a.png", []byte("x"), "", 0, 0)
	b := decode.NewHandle("https://img.example.com/a.png", []byte("x"), "", 0, 0)
	assert.NotEqual(t, a.URL(), b.URL())
}

func TestNewStatic(t *testing.T) {
	h := decode.NewStatic("/placeholder.svg")
	assert.Equal(t, "/placeholder.svg", h.URL())
	assert.Equal(t, "/placeholder.svg", h.Source())
	assert.True(t, h.Detached())
	assert.False(t, h.Released())
	assert.Zero(t, h.Size())
}
