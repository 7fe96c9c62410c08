package transcode

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"media-proxy-go/internal/config"
	"media-proxy-go/internal/sniff"
)

func newTestTranscoder(t *testing.T, opts ...Option) *Transcoder {
	t.Helper()
	cfg := &config.Config{
		Encode: config.EncodeConfig{Quality: 80, MaxPixels: 1 << 20},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTranscoder(cfg, logger, opts...)
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// animatedGIF builds a GIF with one full-screen frame per color.
func animatedGIF(t *testing.T, w, h int, delays []int, colors ...color.Color) []byte {
	t.Helper()
	pal := append(color.Palette{color.Transparent}, colors...)
	g := &gif.GIF{Config: image.Config{Width: w, Height: h, ColorModel: pal}}
	for i := range colors {
		p := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		for j := range p.Pix {
			p.Pix[j] = uint8(i + 1)
		}
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, delays[i])
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// apngFixtureFrame describes one frame of a hand-assembled APNG.
type apngFixtureFrame struct {
	img      *image.NRGBA
	x, y     int
	delayNum uint16
	delayDen uint16
	dispose  byte
	blend    byte
	corrupt  bool
	// declaredW and declaredH override the fcTL size when non-zero.
	declaredW, declaredH int
}

func pngChunk(typ string, data []byte) []byte {
	out := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], typ)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[4:]))
}

// splitPNG returns the IHDR payload and the concatenated IDAT payload.
func splitPNG(t *testing.T, data []byte) (ihdr, idat []byte) {
	t.Helper()
	for off := len(sniff.PNGSignature); off+12 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		payload := data[off+8 : off+8+n]
		switch typ {
		case "IHDR":
			ihdr = payload
		case "IDAT":
			idat = append(idat, payload...)
		}
		off += 12 + n
	}
	if ihdr == nil || idat == nil {
		t.Fatal("fixture png missing IHDR or IDAT")
	}
	return ihdr, idat
}

// buildAPNG assembles an animated PNG on a w x h canvas. All frame images
// must be opaque so that they share the same IHDR color type.
func buildAPNG(t *testing.T, w, h int, frames []apngFixtureFrame) []byte {
	t.Helper()

	var out bytes.Buffer
	out.WriteString(sniff.PNGSignature)

	canvasIHDR, _ := splitPNG(t, encodePNG(t, solid(w, h, red)))
	ihdr := bytes.Clone(canvasIHDR)
	out.Write(pngChunk("IHDR", ihdr))

	actl := make([]byte, 8)
	binary.BigEndian.PutUint32(actl[0:4], uint32(len(frames)))
	out.Write(pngChunk("acTL", actl))

	seq := uint32(0)
	for i, f := range frames {
		fw, fh := f.img.Bounds().Dx(), f.img.Bounds().Dy()
		if f.declaredW != 0 {
			fw, fh = f.declaredW, f.declaredH
		}
		fctl := make([]byte, 26)
		binary.BigEndian.PutUint32(fctl[0:4], seq)
		binary.BigEndian.PutUint32(fctl[4:8], uint32(fw))
		binary.BigEndian.PutUint32(fctl[8:12], uint32(fh))
		binary.BigEndian.PutUint32(fctl[12:16], uint32(f.x))
		binary.BigEndian.PutUint32(fctl[16:20], uint32(f.y))
		binary.BigEndian.PutUint16(fctl[20:22], f.delayNum)
		binary.BigEndian.PutUint16(fctl[22:24], f.delayDen)
		fctl[24] = f.dispose
		fctl[25] = f.blend
		out.Write(pngChunk("fcTL", fctl))
		seq++

		_, idat := splitPNG(t, encodePNG(t, f.img))
		var c []byte
		if i == 0 {
			c = pngChunk("IDAT", idat)
		} else {
			payload := binary.BigEndian.AppendUint32(nil, seq)
			c = pngChunk("fdAT", append(payload, idat...))
			seq++
		}
		if f.corrupt {
			c[len(c)-1] ^= 0xff
		}
		out.Write(c)
	}
	out.Write(pngChunk("IEND", nil))
	return out.Bytes()
}

// threeFrameAPNG is a 3-frame 8x8 APNG with delays of 100ms, 200ms and 50ms.
func threeFrameAPNG(t *testing.T) []byte {
	t.Helper()
	return buildAPNG(t, 8, 8, []apngFixtureFrame{
		{img: solid(8, 8, red), delayNum: 1, delayDen: 10},
		{img: solid(8, 8, green), delayNum: 20, delayDen: 100},
		{img: solid(8, 8, blue), delayNum: 50, delayDen: 1000},
	})
}

// animatedWebP encodes a two-frame animated WebP with delays of 100ms and 70ms.
func animatedWebP(t *testing.T, w, h int) []byte {
	t.Helper()
	out, err := newTestTranscoder(t).EncodeAnimated(w, h, frameSeq(
		Frame{Image: solid(w, h, red), Delay: 100 * time.Millisecond},
		Frame{Image: solid(w, h, blue), Delay: 70 * time.Millisecond},
	))
	if err != nil {
		t.Fatal(err)
	}
	return out
}

// frameSeq builds a frame sequence from literal results.
func frameSeq(entries ...any) func(yield func(Frame, error) bool) {
	return func(yield func(Frame, error) bool) {
		for _, e := range entries {
			var ok bool
			switch v := e.(type) {
			case Frame:
				ok = yield(v, nil)
			case error:
				ok = yield(Frame{}, v)
			}
			if !ok {
				return
			}
		}
	}
}
