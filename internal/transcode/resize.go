package transcode

import "image"

// Constraints describe the box an image is resized into. Zero values mean
// unconstrained. Animated frames carry the canvas size of their container.
type Constraints struct {
	Width  int
	Height int
}

// Resizer is the resize strategy applied to every still image and every
// animation frame before encoding.
type Resizer interface {
	Resize(img image.Image, c Constraints) image.Image
}

// Identity returns images unchanged.
type Identity struct{}

func (Identity) Resize(img image.Image, _ Constraints) image.Image {
	return img
}

// ResizerFunc adapts a function to the Resizer interface.
type ResizerFunc func(img image.Image, c Constraints) image.Image

func (f ResizerFunc) Resize(img image.Image, c Constraints) image.Image {
	return f(img, c)
}
