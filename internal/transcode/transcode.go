// Package transcode decides how a fetched payload is re-encoded and turns
// still and animated images into WebP.
package transcode

import (
	"errors"
	"fmt"
	"log/slog"

	"media-proxy-go/internal/config"
)

// ErrNoFrames is returned when an animated container yields no usable frame.
var ErrNoFrames = errors.New("animation has no decodable frames")

// CodecKind tags a soft transcoding failure.
type CodecKind string

const (
	DecodeError CodecKind = "DecodeError"
	EncodeError CodecKind = "EncodeError"
)

// CodecError is a transcoding failure that should not fail the request:
// the caller gets the original bytes and a diagnostic instead.
type CodecError struct {
	Kind CodecKind
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// defaultMaxPixels bounds the decoded canvas when the config leaves it unset.
const defaultMaxPixels = 64 << 20

// Transcoder holds the encoder settings and the resize strategy. It has no
// mutable state and is safe for concurrent use.
type Transcoder struct {
	resizer   Resizer
	quality   float32
	lossless  bool
	maxPixels int64
	logger    *slog.Logger
}

// Option customizes a Transcoder.
type Option func(*Transcoder)

// WithResizer replaces the identity resize strategy.
func WithResizer(r Resizer) Option {
	return func(t *Transcoder) {
		t.resizer = r
	}
}

// NewTranscoder creates a Transcoder from the encode settings in cfg.
func NewTranscoder(cfg *config.Config, logger *slog.Logger, opts ...Option) *Transcoder {
	t := &Transcoder{
		resizer:   Identity{},
		quality:   cfg.Encode.Quality,
		lossless:  cfg.Encode.Lossless,
		maxPixels: cfg.Encode.MaxPixels,
		logger:    logger.With("component", "transcoder"),
	}
	if t.maxPixels <= 0 {
		t.maxPixels = defaultMaxPixels
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// checkCanvas rejects dimensions that are empty or larger than the pixel budget.
func (t *Transcoder) checkCanvas(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid canvas %dx%d", width, height)
	}
	if int64(width)*int64(height) > t.maxPixels {
		return fmt.Errorf("canvas %dx%d exceeds %d pixels", width, height, t.maxPixels)
	}
	return nil
}
