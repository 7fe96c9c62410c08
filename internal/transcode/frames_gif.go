package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"time"

	"golang.org/x/image/draw"
)

// gifDelayUnit is the GIF delay granularity (hundredths of a second).
const gifDelayUnit = 10 * time.Millisecond

// openGIF decodes every frame of a GIF and composites them lazily onto the
// logical screen.
func openGIF(buf []byte) (*Animation, error) {
	g, err := gif.DecodeAll(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	if len(g.Image) == 0 {
		return nil, errors.New("gif: no frames")
	}

	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		var union image.Rectangle
		for _, p := range g.Image {
			union = union.Union(p.Bounds())
		}
		width, height = union.Max.X, union.Max.Y
	}

	return &Animation{
		Width:  width,
		Height: height,
		Frames: func(yield func(Frame, error) bool) {
			cv := newCanvas(width, height)
			for i, p := range g.Image {
				var delay time.Duration
				if i < len(g.Delay) {
					delay = time.Duration(g.Delay[i]) * gifDelayUnit
				}
				dispose := disposeNone
				if i < len(g.Disposal) {
					dispose = gifDisposal(g.Disposal[i])
				}

				snapshot, err := cv.compose(p, p.Bounds(), draw.Over, dispose)
				if err != nil {
					if !yield(Frame{}, fmt.Errorf("gif frame %d: %w", i, err)) {
						return
					}
					continue
				}
				if !yield(Frame{Image: snapshot, Delay: delay}, nil) {
					return
				}
			}
		},
	}, nil
}

func gifDisposal(d byte) disposal {
	switch d {
	case gif.DisposalBackground:
		return disposeBackground
	case gif.DisposalPrevious:
		return disposePrevious
	default:
		return disposeNone
	}
}
