package transcode

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG

	"github.com/chai2010/webp"
	animwebp "github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"media-proxy-go/internal/sniff"
)

// EncodeStatic decodes buf with format auto-detection, applies the resize
// strategy and re-encodes the result as a single WebP image. Failures are
// returned as *CodecError so the caller can fall back to the original bytes.
func (t *Transcoder) EncodeStatic(buf []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, &CodecError{Kind: DecodeError, Err: err}
	}
	if err := t.checkCanvas(cfg.Width, cfg.Height); err != nil {
		return nil, &CodecError{Kind: DecodeError, Err: err}
	}

	img, err := decodeStill(buf)
	if err != nil {
		return nil, &CodecError{Kind: DecodeError, Err: err}
	}

	img = t.resizer.Resize(img, Constraints{})

	var out bytes.Buffer
	opts := &webp.Options{
		Lossless: t.lossless,
		Quality:  t.quality,
	}
	if err := webp.Encode(&out, img, opts); err != nil {
		return nil, &CodecError{Kind: EncodeError, Err: err}
	}
	return out.Bytes(), nil
}

// decodeStill decodes a single image. Animated WebP is handed to the
// animation decoder, which yields its first frame.
func decodeStill(buf []byte) (image.Image, error) {
	if sniff.IsAnimatedWebP(buf) {
		return animwebp.Decode(bytes.NewReader(buf))
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	return img, err
}
