package transcode

import (
	"bytes"
	"image"

	"media-proxy-go/internal/sniff"
)

// Kind is the transcode path chosen for a payload.
type Kind int

const (
	PassThrough Kind = iota
	Static
	Animated
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Animated:
		return "animated"
	default:
		return "passthrough"
	}
}

// Decision is the outcome of Route.
type Decision struct {
	Kind Kind
	// Animation is set when Kind is Animated.
	Animation *Animation
	// Fallback records why an animated container was sent down the static path.
	Fallback error
}

// Route picks the transcode path for buf. Containers that can animate take
// the animated path unless the caller asked for a still image. Failing to
// open an animated container is never fatal: it degrades to Static, and only
// unrecognized payloads pass through untouched.
func (t *Transcoder) Route(format sniff.Format, buf []byte, static bool) Decision {
	switch format {
	case sniff.PNG:
		if static || !sniff.IsAnimatedPNG(buf) {
			return Decision{Kind: Static}
		}
		return t.openAnimated(buf, openAPNG)
	case sniff.GIF:
		if static {
			return Decision{Kind: Static}
		}
		return t.openAnimated(buf, openGIF)
	case sniff.WebP:
		if static || !sniff.IsAnimatedWebP(buf) {
			return Decision{Kind: Static}
		}
		return t.openAnimated(buf, openWebP)
	case sniff.JPEG, sniff.BMP, sniff.TIFF:
		return Decision{Kind: Static}
	default:
		return Decision{Kind: PassThrough}
	}
}

func (t *Transcoder) openAnimated(buf []byte, open func([]byte) (*Animation, error)) Decision {
	// Check the declared canvas before open allocates any frame.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return Decision{Kind: Static, Fallback: err}
	}
	if err := t.checkCanvas(cfg.Width, cfg.Height); err != nil {
		return Decision{Kind: Static, Fallback: err}
	}

	anim, err := open(buf)
	if err != nil {
		return Decision{Kind: Static, Fallback: err}
	}
	if err := t.checkCanvas(anim.Width, anim.Height); err != nil {
		return Decision{Kind: Static, Fallback: err}
	}
	return Decision{Kind: Animated, Animation: anim}
}
