package convolution

import (
	"iter"

	"go-convolve/pkg/grid"
)

// Partition yields the work units of a width×height grid under m, in dispatch order.
//
// Units are pairwise disjoint and together cover every cell exactly once; the
// engine relies on this to let units write the output grid without locks.
// m must be valid (see Mode.Validate).
func Partition(m Mode, width, height int) iter.Seq[grid.Rect] {
	return func(yield func(grid.Rect) bool) {
		if width <= 0 || height <= 0 {
			return
		}
		switch m.Strategy {
		case Sequential:
			yield(grid.Rect{X1: width, Y1: height})

		case ParallelRows:
			for y := 0; y < height; y += m.BatchSize {
				if !yield(grid.Rect{X0: 0, Y0: y, X1: width, Y1: min(y+m.BatchSize, height)}) {
					return
				}
			}

		case ParallelCols:
			for x := 0; x < width; x += m.BatchSize {
				if !yield(grid.Rect{X0: x, Y0: 0, X1: min(x+m.BatchSize, width), Y1: height}) {
					return
				}
			}

		case ParallelRectangle:
			for y := 0; y < height; y += m.TileHeight {
				for x := 0; x < width; x += m.TileWidth {
					tile := grid.Rect{
						X0: x,
						Y0: y,
						X1: min(x+m.TileWidth, width),
						Y1: min(y+m.TileHeight, height),
					}
					if !yield(tile) {
						return
					}
				}
			}

		case ParallelElems:
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					if !yield(grid.Rect{X0: x, Y0: y, X1: x + 1, Y1: y + 1}) {
						return
					}
				}
			}
		}
	}
}

// UnitCount returns how many units Partition yields for a width×height grid.
func UnitCount(m Mode, width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch m.Strategy {
	case Sequential:
		return 1
	case ParallelRows:
		return ceilDiv(height, m.BatchSize)
	case ParallelCols:
		return ceilDiv(width, m.BatchSize)
	case ParallelRectangle:
		return ceilDiv(width, m.TileWidth) * ceilDiv(height, m.TileHeight)
	case ParallelElems:
		return width * height
	default:
		return 0
	}
}

// ceilDiv is a/b rounded up for a > 0, without overflowing on large b.
func ceilDiv(a, b int) int {
	return (a-1)/b + 1
}
