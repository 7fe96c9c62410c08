package transcode

import (
	"fmt"
	"image"
	"iter"
	"time"

	"golang.org/x/image/draw"
)

// Frame is one animation frame composited onto the full canvas.
type Frame struct {
	Image image.Image
	Delay time.Duration
}

// Animation is an opened animated container. Frames are decoded lazily and a
// frame that fails to decode is yielded as an error without ending the sequence.
type Animation struct {
	Width  int
	Height int
	Frames iter.Seq2[Frame, error]
}

// disposal is what happens to a frame's region before the next frame is drawn.
type disposal int

const (
	disposeNone disposal = iota
	disposeBackground
	disposePrevious
)

// canvas accumulates frames that only cover part of the animation area.
type canvas struct {
	img *image.NRGBA
}

func newCanvas(width, height int) *canvas {
	return &canvas{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// compose draws src into rect, returns a snapshot of the whole canvas, then
// applies the frame's disposal so the canvas is ready for the next frame.
func (c *canvas) compose(src image.Image, rect image.Rectangle, op draw.Op, dispose disposal) (*image.NRGBA, error) {
	if rect.Empty() || !rect.In(c.img.Bounds()) {
		return nil, fmt.Errorf("frame %v outside canvas %v", rect, c.img.Bounds())
	}

	var saved *image.NRGBA
	if dispose == disposePrevious {
		saved = image.NewNRGBA(rect)
		draw.Draw(saved, rect, c.img, rect.Min, draw.Src)
	}

	draw.Draw(c.img, rect, src, src.Bounds().Min, op)
	snapshot := cloneNRGBA(c.img)

	switch dispose {
	case disposeBackground:
		draw.Draw(c.img, rect, image.Transparent, image.Point{}, draw.Src)
	case disposePrevious:
		draw.Draw(c.img, rect, saved, rect.Min, draw.Src)
	}
	return snapshot, nil
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// toCanvas converts img to a width x height NRGBA anchored at the origin, the
// representation the animation encoder consumes.
func toCanvas(img image.Image, width, height int) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	bounds := image.Rect(0, 0, width, height)
	if n, ok := img.(*image.NRGBA); ok && n.Rect == bounds {
		return n, nil
	}
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, img, img.Bounds().Min, draw.Src)
	return dst, nil
}
