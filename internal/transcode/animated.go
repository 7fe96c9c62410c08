package transcode

import (
	"bytes"
	"image"
	"iter"

	"github.com/gen2brain/webp"
)

// timedFrame is a buffered frame and its start offset in milliseconds.
type timedFrame struct {
	img       image.Image
	timestamp int
}

// EncodeAnimated consumes frames lazily and builds an animated WebP of the
// given canvas size. ErrNoFrames is returned when nothing is left to encode.
func (t *Transcoder) EncodeAnimated(width, height int, frames iter.Seq2[Frame, error]) ([]byte, error) {
	timeline, end := t.collect(frames, Constraints{Width: width, Height: height})
	if len(timeline) == 0 {
		return nil, ErrNoFrames
	}

	anim := &webp.WEBP{}
	var stamps []int
	for i, tf := range timeline {
		img, err := toCanvas(tf.img, width, height)
		if err != nil {
			t.logger.Debug("skipping frame", "index", i, "err", err)
			continue
		}
		anim.Image = append(anim.Image, img)
		stamps = append(stamps, tf.timestamp)
	}
	if len(stamps) == 0 {
		return nil, ErrNoFrames
	}
	anim.Delay = frameDurations(stamps, end)

	var out bytes.Buffer
	opts := webp.Options{
		Quality:  int(t.quality),
		Lossless: t.lossless,
	}
	if err := webp.EncodeAll(&out, anim, opts); err != nil {
		return nil, &CodecError{Kind: EncodeError, Err: err}
	}
	return out.Bytes(), nil
}

// collect drains frames, dropping the ones that failed to decode. Each kept
// frame is resized and stamped with its absolute start offset: the sum of the
// delays of the kept frames before it, each truncated to whole milliseconds.
// The second result is the offset at which the last frame ends.
func (t *Transcoder) collect(frames iter.Seq2[Frame, error], bounds Constraints) ([]timedFrame, int) {
	var timeline []timedFrame
	elapsed := 0
	for frame, err := range frames {
		if err != nil {
			t.logger.Debug("dropping undecodable frame", "err", err)
			continue
		}
		timeline = append(timeline, timedFrame{
			img:       t.resizer.Resize(frame.Image, bounds),
			timestamp: elapsed,
		})
		elapsed += int(frame.Delay.Milliseconds())
	}
	return timeline, elapsed
}

// frameDurations turns start offsets into per-frame display times. A frame
// lasts until the next one starts; the last one lasts until end.
func frameDurations(stamps []int, end int) []int {
	durations := make([]int, len(stamps))
	for i, start := range stamps {
		next := end
		if i+1 < len(stamps) {
			next = stamps[i+1]
		}
		durations[i] = next - start
	}
	return durations
}
