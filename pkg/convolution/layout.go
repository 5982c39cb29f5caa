package convolution

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"go-convolve/pkg/grid"
)

// ErrUnsupportedLayout is returned for images that are neither 8-bit gray nor opaque 8-bit RGB.
var ErrUnsupportedLayout = errors.New("convolution: unsupported image layout")

// Layout is the channel arrangement of an input image.
type Layout int

const (
	LayoutGray Layout = iota + 1
	LayoutRGB
)

func (l Layout) String() string {
	switch l {
	case LayoutGray:
		return "gray"
	case LayoutRGB:
		return "rgb"
	default:
		return "unknown"
	}
}

// Channels returns the number of channels convolved for the layout.
func (l Layout) Channels() int {
	switch l {
	case LayoutGray:
		return 1
	case LayoutRGB:
		return 3
	default:
		return 0
	}
}

// DetectLayout classifies img. 8-bit gray images have one channel; opaque
// 8-bit color images (RGBA, NRGBA, YCbCr, paletted) have three. Images with
// an alpha channel in use or more than 8 bits per sample are rejected.
func DetectLayout(img image.Image) (Layout, error) {
	if img == nil {
		return 0, fmt.Errorf("%w: nil image", ErrUnsupportedLayout)
	}
	switch m := img.(type) {
	case *image.Gray:
		return LayoutGray, nil
	case *image.RGBA, *image.NRGBA, *image.YCbCr, *image.Paletted:
		if o, ok := m.(interface{ Opaque() bool }); ok && !o.Opaque() {
			return 0, fmt.Errorf("%w: %T has a non-opaque alpha channel", ErrUnsupportedLayout, img)
		}
		return LayoutRGB, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedLayout, img)
	}
}

// planes gives per-channel access to a decoded image and its output.
type planes struct {
	layout Layout
	width  int
	height int

	gray    *image.Gray  // LayoutGray input
	rgb     *image.NRGBA // LayoutRGB input
	outGray *image.Gray  // LayoutGray output
	outRGB  *image.NRGBA // LayoutRGB output
}

func newPlanes(img image.Image, layout Layout) *planes {
	b := img.Bounds()
	p := &planes{layout: layout, width: b.Dx(), height: b.Dy()}
	switch layout {
	case LayoutGray:
		p.gray = img.(*image.Gray)
		p.outGray = image.NewGray(image.Rect(0, 0, p.width, p.height))
	case LayoutRGB:
		// imaging.Clone normalizes every color model to NRGBA with bounds at the origin.
		p.rgb = imaging.Clone(img)
		p.outRGB = image.NewNRGBA(image.Rect(0, 0, p.width, p.height))
		for i := 3; i < len(p.outRGB.Pix); i += 4 {
			p.outRGB.Pix[i] = 0xff
		}
	}
	return p
}

// extract copies channel c of the input into a new grid.
func (p *planes) extract(c int) *grid.Grid[uint8] {
	g := grid.New[uint8](p.width, p.height)
	switch p.layout {
	case LayoutGray:
		b := p.gray.Bounds()
		for y := 0; y < p.height; y++ {
			start := p.gray.PixOffset(b.Min.X, b.Min.Y+y)
			copy(g.Row(y), p.gray.Pix[start:start+p.width])
		}
	case LayoutRGB:
		for y := 0; y < p.height; y++ {
			row := g.Row(y)
			src := p.rgb.Pix[y*p.rgb.Stride:]
			for x := range row {
				row[x] = src[x*4+c]
			}
		}
	}
	return g
}

// store writes g into channel c of the output. Channels touch disjoint bytes.
func (p *planes) store(c int, g *grid.Grid[uint8]) {
	switch p.layout {
	case LayoutGray:
		for y := 0; y < p.height; y++ {
			copy(p.outGray.Pix[y*p.outGray.Stride:], g.Row(y))
		}
	case LayoutRGB:
		for y := 0; y < p.height; y++ {
			dst := p.outRGB.Pix[y*p.outRGB.Stride:]
			for x, v := range g.Row(y) {
				dst[x*4+c] = v
			}
		}
	}
}

func (p *planes) output() image.Image {
	if p.layout == LayoutGray {
		return p.outGray
	}
	return p.outRGB
}
