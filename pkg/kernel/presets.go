package kernel

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Identity returns a size×size kernel with a single unit weight in the center.
func Identity(size int) (*Kernel, error) {
	c := size / 2
	return Fill(size, func(x, y int) float32 {
		if x == c && y == c {
			return 1
		}
		return 0
	})
}

// BoxBlur returns a size×size kernel with equal weights summing to 1.
func BoxBlur(size int) (*Kernel, error) {
	w := 1 / float32(size*size)
	return Fill(size, func(_, _ int) float32 { return w })
}

// MotionBlur returns a size×size kernel averaging along the main diagonal.
func MotionBlur(size int) (*Kernel, error) {
	w := 1 / float32(size)
	return Fill(size, func(x, y int) float32 {
		if x == y {
			return w
		}
		return 0
	})
}

// Gaussian creates a normalized Gaussian kernel of the given size.
func Gaussian(size int) (*Kernel, error) {
	if size <= 0 {
		return nil, ErrEmpty
	}
	// Sigma should be proportional to size, but not too large
	// Common formula: sigma = radius / 3, where radius = size / 2
	sigma := float64(size) / 3.0
	center := size / 2

	values := make([]float64, size*size)
	sum := 0.0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x - center)
			dy := float64(y - center)
			v := math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)) / (2 * math.Pi * sigma * sigma)
			values[y*size+x] = v
			sum += v
		}
	}

	return Fill(size, func(x, y int) float32 {
		return float32(values[y*size+x] / sum)
	})
}

// Gaussian3x3 returns the binomial 3×3 Gaussian approximation.
func Gaussian3x3() *Kernel {
	return Must([][]float32{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}).Scale(1.0 / 16)
}

// Gaussian5x5 returns the binomial 5×5 Gaussian approximation.
func Gaussian5x5() *Kernel {
	return Must([][]float32{
		{1, 4, 6, 4, 1},
		{4, 16, 24, 16, 4},
		{6, 24, 36, 24, 6},
		{4, 16, 24, 16, 4},
		{1, 4, 6, 4, 1},
	}).Scale(1.0 / 256)
}

// Edge returns the 8-neighbour Laplacian edge detector.
func Edge() *Kernel {
	return Must([][]float32{
		{-1, -1, -1},
		{-1, 8, -1},
		{-1, -1, -1},
	})
}

// Sharpen5 returns the 4-neighbour sharpen kernel.
func Sharpen5() *Kernel {
	return Must([][]float32{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	})
}

// Sharpen8 returns the 8-neighbour sharpen kernel.
func Sharpen8() *Kernel {
	return Must([][]float32{
		{-1, -1, -1},
		{-1, 9, -1},
		{-1, -1, -1},
	})
}

// Emboss returns a diagonal emboss kernel.
func Emboss() *Kernel {
	return Must([][]float32{
		{-2, -1, 0},
		{-1, 1, 1},
		{0, 1, 2},
	})
}

type preset struct {
	sized bool
	make  func(size int) (*Kernel, error)
	doc   string
}

func fixed(k func() *Kernel) func(int) (*Kernel, error) {
	return func(int) (*Kernel, error) { return k(), nil }
}

var presets = map[string]preset{
	"identity":  {sized: true, make: Identity, doc: "unit weight in the center"},
	"box":       {sized: true, make: BoxBlur, doc: "uniform average"},
	"motion":    {sized: true, make: MotionBlur, doc: "diagonal motion blur"},
	"gaussian":  {sized: true, make: Gaussian, doc: "generated Gaussian, sigma = size/3"},
	"gaussian3": {make: fixed(Gaussian3x3), doc: "3x3 binomial Gaussian"},
	"gaussian5": {make: fixed(Gaussian5x5), doc: "5x5 binomial Gaussian"},
	"edge":      {make: fixed(Edge), doc: "Laplacian edge detector"},
	"sharpen5":  {make: fixed(Sharpen5), doc: "4-neighbour sharpen"},
	"sharpen8":  {make: fixed(Sharpen8), doc: "8-neighbour sharpen"},
	"emboss":    {make: fixed(Emboss), doc: "diagonal emboss"},
}

// ByName builds a preset kernel. size is ignored by fixed-size presets.
func ByName(name string, size int) (*Kernel, error) {
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("kernel: unknown preset %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return p.make(size)
}

// Names returns the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description of a preset and whether it takes a size.
func Describe(name string) (doc string, sized bool, ok bool) {
	p, ok := presets[name]
	return p.doc, p.sized, ok
}
