package decode

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG

	"github.com/jmgilman/go/errors"
)

// Decoder turns a raw payload fetched from source into a Handle.
type Decoder interface {
	Decode(source string, payload []byte) (*Handle, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(source string, payload []byte) (*Handle, error)

// Decode calls f.
func (f DecoderFunc) Decode(source string, payload []byte) (*Handle, error) {
	return f(source, payload)
}

// ImageDecoder reads the image header to validate the payload and record its
// dimensions. Pixels are not decoded.
type ImageDecoder struct{}

// Decode implements Decoder.
func (ImageDecoder) Decode(source string, payload []byte) (*Handle, error) {
	if len(payload) == 0 {
		return nil, errors.WithContext(errors.New(errors.CodeInvalidInput, "empty image payload"), "url", source)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeInvalidInput, "undecodable image payload"), "url", source)
	}
	return NewHandle(source, payload, format, cfg.Width, cfg.Height), nil
}

// PassthroughDecoder accepts any non-empty payload without inspecting it. Use
// it when the display layer performs its own decoding.
type PassthroughDecoder struct{}

// Decode implements Decoder.
func (PassthroughDecoder) Decode(source string, payload []byte) (*Handle, error) {
	if len(payload) == 0 {
		return nil, errors.WithContext(errors.New(errors.CodeInvalidInput, "empty image payload"), "url", source)
	}
	return NewHandle(source, payload, "", 0, 0), nil
}
