package transcode

import (
	"bytes"
	"image/jpeg"
	"testing"

	chaiwebp "github.com/chai2010/webp"

	"media-proxy-go/internal/sniff"
)

func TestRoute(t *testing.T) {
	tr := newTestTranscoder(t)

	stillPNG := encodePNG(t, solid(4, 4, red))
	apng := threeFrameAPNG(t)
	animGIF := animatedGIF(t, 4, 4, []int{10, 10}, red, green)

	var stillWebP bytes.Buffer
	if err := chaiwebp.Encode(&stillWebP, solid(4, 4, red), &chaiwebp.Options{Quality: 80}); err != nil {
		t.Fatal(err)
	}
	// VP8X header with the animation flag but nothing behind it.
	animWebP := animatedWebP(t, 4, 4)
	fakeAnimWebP := append([]byte("RIFF\x16\x00\x00\x00WEBPVP8X\x0a\x00\x00\x00\x02"), make([]byte, 9)...)

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, solid(4, 4, red), nil); err != nil {
		t.Fatal(err)
	}

	// acTL present but no fcTL: the container opens as an animation with no frames.
	emptyAPNG := buildAPNG(t, 4, 4, nil)

	tests := []struct {
		name         string
		data         []byte
		static       bool
		want         Kind
		wantFallback bool
	}{
		{"still png", stillPNG, false, Static, false},
		{"apng", apng, false, Animated, false},
		{"apng static requested", apng, true, Static, false},
		{"apng without frames", emptyAPNG, false, Static, true},
		{"gif", animGIF, false, Animated, false},
		{"gif static requested", animGIF, true, Static, false},
		{"broken gif", []byte("GIF89a\x01\x00garbage"), false, Static, true},
		{"still webp", stillWebP.Bytes(), false, Static, false},
		{"animated webp", animWebP, false, Animated, false},
		{"animated webp static requested", animWebP, true, Static, false},
		{"animated webp flag on garbage", fakeAnimWebP, false, Static, true},
		{"animated webp flag static requested", fakeAnimWebP, true, Static, false},
		{"jpeg", jpg.Bytes(), false, Static, false},
		{"plain text", []byte("just some text"), false, PassThrough, false},
		{"plain text static requested", []byte("just some text"), true, PassThrough, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tr.Route(sniff.Detect(tt.data), tt.data, tt.static)
			if d.Kind != tt.want {
				t.Fatalf("Kind = %v, want %v (fallback: %v)", d.Kind, tt.want, d.Fallback)
			}
			if (d.Fallback != nil) != tt.wantFallback {
				t.Errorf("Fallback = %v, want fallback %v", d.Fallback, tt.wantFallback)
			}
			if d.Kind == Animated && d.Animation == nil {
				t.Error("Animated decision without Animation")
			}
		})
	}
}

func TestRoute_AnimatedCanvasTooLarge(t *testing.T) {
	tr := newTestTranscoder(t)
	tr.maxPixels = 16

	apng := threeFrameAPNG(t) // 8x8 = 64 pixels
	d := tr.Route(sniff.PNG, apng, false)
	if d.Kind != Static {
		t.Fatalf("Kind = %v, want %v", d.Kind, Static)
	}
	if d.Fallback == nil {
		t.Error("expected Fallback to explain the static route")
	}
}

func TestRoute_AnimatedDimensions(t *testing.T) {
	tr := newTestTranscoder(t)

	d := tr.Route(sniff.GIF, animatedGIF(t, 6, 3, []int{5, 5}, red, blue), false)
	if d.Kind != Animated {
		t.Fatalf("Kind = %v, want %v", d.Kind, Animated)
	}
	if d.Animation.Width != 6 || d.Animation.Height != 3 {
		t.Errorf("size = %dx%d, want 6x3", d.Animation.Width, d.Animation.Height)
	}
}

func TestKind_String(t *testing.T) {
	tests := map[Kind]string{PassThrough: "passthrough", Static: "static", Animated: "animated"}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
