// Package sniff classifies media payloads from their leading bytes.
package sniff

import (
	"bytes"
	"encoding/binary"
)

// Format is a container format recognized from magic bytes.
type Format int

const (
	Unknown Format = iota
	PNG
	GIF
	WebP
	JPEG
	BMP
	TIFF
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case GIF:
		return "gif"
	case WebP:
		return "webp"
	case JPEG:
		return "jpeg"
	case BMP:
		return "bmp"
	case TIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// PNGSignature is the eight-byte PNG file header.
const PNGSignature = "\x89PNG\r\n\x1a\n"

var magics = []struct {
	format Format
	prefix string
}{
	{PNG, PNGSignature},
	{GIF, "GIF87a"},
	{GIF, "GIF89a"},
	{JPEG, "\xff\xd8\xff"},
	{TIFF, "II*\x00"},
	{TIFF, "MM\x00*"},
	{BMP, "BM"},
}

// Detect returns the container format of buf without decoding it.
// Anything unrecognized is Unknown, which is not an error.
func Detect(buf []byte) Format {
	if isWebP(buf) {
		return WebP
	}
	for _, m := range magics {
		if bytes.HasPrefix(buf, []byte(m.prefix)) {
			return m.format
		}
	}
	return Unknown
}

func isWebP(buf []byte) bool {
	return len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WEBP"
}

// IsAnimatedPNG reports whether buf is a PNG carrying an acTL chunk before
// its first IDAT, which is what makes it an animated PNG.
func IsAnimatedPNG(buf []byte) bool {
	if !bytes.HasPrefix(buf, []byte(PNGSignature)) {
		return false
	}
	for off := len(PNGSignature); off+8 <= len(buf); {
		length := int(binary.BigEndian.Uint32(buf[off:]))
		switch string(buf[off+4 : off+8]) {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		next := off + 12 + length
		if length < 0 || next < off {
			return false
		}
		off = next
	}
	return false
}

// webpAnimationFlag is the animation bit of the VP8X feature flags.
const webpAnimationFlag = 0x02

// IsAnimatedWebP reports whether buf is an extended WebP with the
// animation flag set.
func IsAnimatedWebP(buf []byte) bool {
	if !isWebP(buf) || len(buf) < 21 {
		return false
	}
	return string(buf[12:16]) == "VP8X" && buf[20]&webpAnimationFlag != 0
}
