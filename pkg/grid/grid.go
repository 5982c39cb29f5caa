// Package grid provides single-channel 2D sample surfaces.
//
// A Grid stores width*height samples row-major. Get and Set check bounds and
// report ErrOutOfBounds; UnsafeGet and UnsafeSet skip the check and are meant
// for hot loops whose coordinates were validated up front.
package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned by Get and Set for coordinates outside the grid.
	ErrOutOfBounds = errors.New("grid: coordinate out of bounds")
	// ErrRagged is returned by FromRows when rows differ in length.
	ErrRagged = errors.New("grid: rows must have equal length")
	// ErrEmpty is returned by FromRows when there is no data.
	ErrEmpty = errors.New("grid: empty matrix")
)

// Sample is the set of element types a Grid can hold.
type Sample interface {
	~uint8 | ~float32
}

// Reader is the read side of a grid, as seen by the sampler.
type Reader[T Sample] interface {
	Width() int
	Height() int
	UnsafeGet(x, y int) T
}

// Writer is the write side of a grid.
type Writer[T Sample] interface {
	Width() int
	Height() int
	UnsafeSet(x, y int, v T)
}

// Grid is a width×height surface of samples.
type Grid[T Sample] struct {
	data   []T
	width  int
	height int
}

// New creates a zeroed grid. Non-positive dimensions yield an empty 0×0 grid.
func New[T Sample](width, height int) *Grid[T] {
	if width <= 0 || height <= 0 {
		return &Grid[T]{}
	}
	return &Grid[T]{
		data:   make([]T, width*height),
		width:  width,
		height: height,
	}
}

// Wrap creates a grid over an existing row-major slice without copying.
func Wrap[T Sample](data []T, width, height int) (*Grid[T], error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmpty
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("grid: %d samples cannot back a %dx%d grid", len(data), width, height)
	}
	return &Grid[T]{data: data, width: width, height: height}, nil
}

// FromRows copies rows[y][x] into a new grid.
func FromRows[T Sample](rows [][]T) (*Grid[T], error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmpty
	}
	width := len(rows[0])
	g := New[T](width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d samples, want %d", ErrRagged, y, len(row), width)
		}
		copy(g.data[y*width:], row)
	}
	return g, nil
}

// Width returns the grid width.
func (g *Grid[T]) Width() int { return g.width }

// Height returns the grid height.
func (g *Grid[T]) Height() int { return g.height }

// Contains reports whether (x, y) lies inside the grid.
func (g *Grid[T]) Contains(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// Get returns the sample at (x, y).
func (g *Grid[T]) Get(x, y int) (T, error) {
	if !g.Contains(x, y) {
		var zero T
		return zero, fmt.Errorf("%w: get(%d, %d) on %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	return g.data[y*g.width+x], nil
}

// Set stores v at (x, y).
func (g *Grid[T]) Set(x, y int, v T) error {
	if !g.Contains(x, y) {
		return fmt.Errorf("%w: set(%d, %d) on %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	g.data[y*g.width+x] = v
	return nil
}

// UnsafeGet returns the sample at (x, y) without a bounds check.
func (g *Grid[T]) UnsafeGet(x, y int) T {
	return g.data[y*g.width+x]
}

// UnsafeSet stores v at (x, y) without a bounds check.
func (g *Grid[T]) UnsafeSet(x, y int, v T) {
	g.data[y*g.width+x] = v
}

// Row returns the samples of row y, limited to the grid width.
func (g *Grid[T]) Row(y int) []T {
	if y < 0 || y >= g.height {
		return nil
	}
	return g.data[y*g.width : (y+1)*g.width]
}

// Data returns the backing row-major slice.
func (g *Grid[T]) Data() []T { return g.data }

// Rows returns a copy of the grid as rows[y][x].
func (g *Grid[T]) Rows() [][]T {
	rows := make([][]T, g.height)
	for y := range rows {
		rows[y] = append([]T(nil), g.Row(y)...)
	}
	return rows
}

// Sized is anything with grid dimensions.
type Sized interface {
	Width() int
	Height() int
}

// SameSize reports whether both surfaces have the same dimensions.
func SameSize(a, b Sized) bool {
	return a.Width() == b.Width() && a.Height() == b.Height()
}

// Clone creates a deep copy of the grid.
func (g *Grid[T]) Clone() *Grid[T] {
	return &Grid[T]{
		data:   append([]T(nil), g.data...),
		width:  g.width,
		height: g.height,
	}
}

// Equal reports whether both grids have identical size and samples.
func (g *Grid[T]) Equal(other *Grid[T]) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.width != other.width || g.height != other.height {
		return false
	}
	for i, v := range g.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}
