package media

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// binsPerChannel is the histogram resolution per RGB channel
const binsPerChannel = 8

// histogram is a normalized per-channel RGB histogram
type histogram [3][binsPerChannel]float64

// frameHistogram decodes an encoded frame and builds its histogram.
func frameHistogram(data []byte) (*histogram, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var h histogram
	b := img.Bounds()
	total := 0.0
	// Sample every other pixel on large frames
	step := 1
	if b.Dx()*b.Dy() > 640*480 {
		step = 2
	}
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, _ := img.At(x, y).RGBA()
			h[0][(r>>8)*binsPerChannel/256]++
			h[1][(g>>8)*binsPerChannel/256]++
			h[2][(bl>>8)*binsPerChannel/256]++
			total++
		}
	}
	if total == 0 {
		return &h, nil
	}
	for c := range h {
		for i := range h[c] {
			h[c][i] /= total
		}
	}
	return &h, nil
}

// delta is the mean per-channel histogram distance, in [0, 1].
func (h *histogram) delta(o *histogram) float64 {
	sum := 0.0
	for c := range h {
		channel := 0.0
		for i := range h[c] {
			channel += math.Abs(h[c][i] - o[c][i])
		}
		sum += channel / 2
	}
	return sum / 3
}

// SelectKeyFrames keeps the first decodable frame and every frame whose
// histogram differs from the last kept frame by at least threshold.
// When more than max frames qualify, an evenly spaced subset is kept.
// Undecodable frames are skipped and counted.
func SelectKeyFrames(frames []driven.Frame, threshold float64, max int) (keys []driven.Frame, skipped int) {
	var last *histogram
	for _, f := range frames {
		h, err := frameHistogram(f.Image)
		if err != nil {
			skipped++
			continue
		}
		if last == nil || h.delta(last) >= threshold {
			keys = append(keys, f)
			last = h
		}
	}
	return downsample(keys, max), skipped
}

// downsample keeps at most max frames, evenly spaced, always including the first.
func downsample(frames []driven.Frame, max int) []driven.Frame {
	if max <= 0 || len(frames) <= max {
		return frames
	}
	out := make([]driven.Frame, 0, max)
	step := float64(len(frames)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, frames[int(float64(i)*step)])
	}
	return out
}
