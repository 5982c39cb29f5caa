package convolution

import (
	"math"

	"go-convolve/pkg/grid"
	"go-convolve/pkg/kernel"
)

// Sample computes the filtered value of (x, y) before any output transform.
//
// Each tap whose source coordinate falls inside the grid contributes
// weight*value, and its weight is added to the used-weight sum. Taps outside
// the grid are skipped entirely. A nonzero used-weight sum divides the result,
// which renormalizes the kernel to the in-bounds taps; a zero sum leaves the
// accumulated value as is.
//
// Sample reads only in and k, so calls for different coordinates may run in any
// order and on any goroutine.
func Sample[T grid.Sample](in grid.Reader[T], k *kernel.Kernel, x, y int) float32 {
	size := k.Size()
	c := k.Center()
	width, height := in.Width(), in.Height()
	weights := k.Weights()

	var value, used float32
	for ky := 0; ky < size; ky++ {
		sy := y + ky - c
		if sy < 0 || sy >= height {
			continue
		}
		row := weights[ky*size : (ky+1)*size]
		for kx, w := range row {
			sx := x + kx - c
			if sx < 0 || sx >= width {
				continue
			}
			value += float32(in.UnsafeGet(sx, sy)) * w
			used += w
		}
	}

	if used != 0 {
		value /= used
	}
	return value
}

// Transform converts a sampled value to the output sample type.
type Transform[T grid.Sample] func(float32) T

// RoundClampU8 rounds half up and clamps to [0, 255].
func RoundClampU8(v float32) uint8 {
	r := math.Floor(float64(v) + 0.5)
	switch {
	case r <= 0 || math.IsNaN(r):
		return 0
	case r >= 255:
		return 255
	default:
		return uint8(r)
	}
}

// ClampF32 clamps to [0, 255] without rounding.
func ClampF32(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return v
	}
}

// sampleRect fills r of out. r must lie inside both grids.
func sampleRect[T grid.Sample](in grid.Reader[T], k *kernel.Kernel, out grid.Writer[T], transform Transform[T], r grid.Rect) {
	for y := r.Y0; y < r.Y1; y++ {
		for x := r.X0; x < r.X1; x++ {
			out.UnsafeSet(x, y, transform(Sample(in, k, x, y)))
		}
	}
}
