package transcode

import (
	"bytes"
	"errors"
	"time"

	"github.com/gen2brain/webp"
)

// openWebP decodes an animated WebP. The decoder already returns full-canvas
// frames, so no compositing is needed.
func openWebP(buf []byte) (*Animation, error) {
	anim, err := webp.DecodeAll(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	if len(anim.Image) == 0 {
		return nil, errors.New("webp: no frames")
	}

	bounds := anim.Image[0].Bounds()

	return &Animation{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Frames: func(yield func(Frame, error) bool) {
			for i := range anim.Image {
				var delay time.Duration
				if i < len(anim.Delay) {
					delay = time.Duration(anim.Delay[i]) * time.Millisecond
				}
				if !yield(Frame{Image: anim.Image[i], Delay: delay}, nil) {
					return
				}
			}
		},
	}, nil
}
