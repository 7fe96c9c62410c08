package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"time"

	"golang.org/x/image/draw"

	"media-proxy-go/internal/sniff"
)

// APNG fcTL dispose_op and blend_op values.
const (
	apngDisposeNone       = 0
	apngDisposeBackground = 1
	apngDisposePrevious   = 2

	apngBlendSource = 0
	apngBlendOver   = 1
)

// apngChunk is a raw PNG chunk.
type apngChunk struct {
	typ     string
	data    []byte
	corrupt bool
}

// apngFrame is one fcTL and the image data that follows it.
type apngFrame struct {
	width, height int
	x, y          int
	delayNum      uint16
	delayDen      uint16
	dispose       byte
	blend         byte
	data          [][]byte
	err           error
}

func (f *apngFrame) rect() image.Rectangle {
	return image.Rect(f.x, f.y, f.x+f.width, f.y+f.height)
}

func (f *apngFrame) delay() time.Duration {
	den := f.delayDen
	if den == 0 {
		den = 100
	}
	return time.Duration(f.delayNum) * time.Second / time.Duration(den)
}

// openAPNG splits an animated PNG into per-frame chunk groups. Pixel data is
// only decoded when the returned sequence is iterated, one frame at a time,
// by wrapping each frame in a standalone PNG stream for image/png.
func openAPNG(buf []byte) (*Animation, error) {
	chunks, err := readPNGChunks(buf)
	if err != nil {
		return nil, err
	}

	var (
		ihdr     []byte
		shared   []apngChunk
		frames   []*apngFrame
		current  *apngFrame
		seenACTL bool
		seenIDAT bool
	)

	for _, c := range chunks {
		switch c.typ {
		case "IHDR":
			ihdr = c.data
		case "acTL":
			seenACTL = true
		case "fcTL":
			f, err := parseFCTL(c.data)
			if err != nil {
				return nil, err
			}
			current = f
			frames = append(frames, f)
		case "IDAT":
			seenIDAT = true
			// IDAT without a preceding fcTL is a default image outside the animation.
			if current == nil {
				continue
			}
			if c.corrupt {
				current.err = errors.New("apng: bad CRC in IDAT chunk")
				continue
			}
			current.data = append(current.data, c.data)
		case "fdAT":
			if current == nil {
				continue
			}
			if c.corrupt {
				current.err = errors.New("apng: bad CRC in fdAT chunk")
				continue
			}
			if len(c.data) < 4 {
				current.err = errors.New("apng: short fdAT chunk")
				continue
			}
			current.data = append(current.data, c.data[4:])
		case "IEND":
		default:
			if !seenIDAT {
				shared = append(shared, c)
			}
		}
	}

	if len(ihdr) != 13 {
		return nil, errors.New("apng: missing IHDR")
	}
	if !seenACTL {
		return nil, errors.New("apng: missing acTL")
	}
	if len(frames) == 0 {
		return nil, errors.New("apng: no fcTL chunks")
	}

	width := int(binary.BigEndian.Uint32(ihdr[0:4]))
	height := int(binary.BigEndian.Uint32(ihdr[4:8]))

	// A frame must fit the canvas before its pixels are allocated; the canvas
	// itself is bounded by the caller.
	bounds := image.Rect(0, 0, width, height)
	for _, f := range frames {
		if f.err != nil {
			continue
		}
		if r := f.rect(); r.Empty() || !r.In(bounds) {
			f.err = fmt.Errorf("frame %v outside canvas %v", r, bounds)
		}
	}

	return &Animation{
		Width:  width,
		Height: height,
		Frames: func(yield func(Frame, error) bool) {
			cv := newCanvas(width, height)
			for i, f := range frames {
				img, err := f.decode(ihdr, shared)
				if err != nil {
					if !yield(Frame{}, fmt.Errorf("apng frame %d: %w", i, err)) {
						return
					}
					continue
				}

				dispose := apngDisposal(f.dispose)
				if i == 0 && dispose == disposePrevious {
					dispose = disposeBackground
				}
				op := draw.Src
				if f.blend == apngBlendOver {
					op = draw.Over
				}

				snapshot, err := cv.compose(img, f.rect(), op, dispose)
				if err != nil {
					err = fmt.Errorf("apng frame %d: %w", i, err)
					if !yield(Frame{}, err) {
						return
					}
					continue
				}
				if !yield(Frame{Image: snapshot, Delay: f.delay()}, nil) {
					return
				}
			}
		},
	}, nil
}

// decode rebuilds the frame as a standalone PNG and decodes it.
func (f *apngFrame) decode(ihdr []byte, shared []apngChunk) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.data) == 0 {
		return nil, errors.New("no image data")
	}

	hdr := bytes.Clone(ihdr)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(f.width))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(f.height))

	var b bytes.Buffer
	b.WriteString(sniff.PNGSignature)
	writePNGChunk(&b, "IHDR", hdr)
	for _, c := range shared {
		writePNGChunk(&b, c.typ, c.data)
	}
	writePNGChunk(&b, "IDAT", bytes.Join(f.data, nil))
	writePNGChunk(&b, "IEND", nil)

	return png.Decode(&b)
}

func apngDisposal(op byte) disposal {
	switch op {
	case apngDisposeBackground:
		return disposeBackground
	case apngDisposePrevious:
		return disposePrevious
	default:
		return disposeNone
	}
}

func parseFCTL(data []byte) (*apngFrame, error) {
	if len(data) != 26 {
		return nil, fmt.Errorf("apng: fcTL length %d, want 26", len(data))
	}
	be := binary.BigEndian
	return &apngFrame{
		width:    int(be.Uint32(data[4:8])),
		height:   int(be.Uint32(data[8:12])),
		x:        int(be.Uint32(data[12:16])),
		y:        int(be.Uint32(data[16:20])),
		delayNum: be.Uint16(data[20:22]),
		delayDen: be.Uint16(data[22:24]),
		dispose:  data[24],
		blend:    data[25],
	}, nil
}

// readPNGChunks walks the chunk list after the signature. Image data chunks
// with a bad CRC are kept but flagged so that only their frame fails.
func readPNGChunks(buf []byte) ([]apngChunk, error) {
	if !bytes.HasPrefix(buf, []byte(sniff.PNGSignature)) {
		return nil, errors.New("apng: not a PNG stream")
	}
	var chunks []apngChunk
	off := len(sniff.PNGSignature)
	for off+12 <= len(buf) {
		length := int(binary.BigEndian.Uint32(buf[off:]))
		end := off + 12 + length
		if length < 0 || end > len(buf) || end < off {
			return nil, errors.New("apng: truncated chunk")
		}
		typ := string(buf[off+4 : off+8])
		data := buf[off+8 : off+8+length]
		crc := binary.BigEndian.Uint32(buf[off+8+length:])
		corrupt := crc32.ChecksumIEEE(buf[off+4:off+8+length]) != crc
		if corrupt && typ != "IDAT" && typ != "fdAT" {
			return nil, fmt.Errorf("apng: bad CRC in %s chunk", typ)
		}
		chunks = append(chunks, apngChunk{typ: typ, data: data, corrupt: corrupt})
		off = end
		if typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

func writePNGChunk(b *bytes.Buffer, typ string, data []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(data)))
	copy(hdr[4:], typ)
	b.Write(hdr[:])
	b.Write(data)
	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	b.Write(sum[:])
}
