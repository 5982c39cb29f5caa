// Package kernel holds the immutable square weight matrices used by the
// convolution engine, plus a catalog of common presets.
package kernel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty is returned when a kernel has no rows.
	ErrEmpty = errors.New("kernel: empty matrix")
	// ErrNotSquare is returned when a kernel's rows differ from its height.
	ErrNotSquare = errors.New("kernel: matrix must be square")
	// ErrEvenSize is returned when a kernel's side is even.
	ErrEvenSize = errors.New("kernel: size must be odd")
)

// Kernel is an odd-sized square matrix of float32 weights.
// A Kernel never changes after construction and is safe to share between goroutines.
type Kernel struct {
	weights []float32
	size    int
}

// New builds a kernel from rows of weights. rows[y][x] is the weight at (x, y).
// The rows are copied.
func New(rows [][]float32) (*Kernel, error) {
	size := len(rows)
	if size == 0 {
		return nil, ErrEmpty
	}
	for y, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("%w: row %d has %d weights, want %d", ErrNotSquare, y, len(row), size)
		}
	}
	if size%2 == 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrEvenSize, size, size)
	}

	weights := make([]float32, 0, size*size)
	for _, row := range rows {
		weights = append(weights, row...)
	}
	return &Kernel{weights: weights, size: size}, nil
}

// Must is like New but panics on error. Intended for presets and tests.
func Must(rows [][]float32) *Kernel {
	k, err := New(rows)
	if err != nil {
		panic(err)
	}
	return k
}

// Fill returns a size×size kernel whose weight at (x, y) is fn(x, y).
func Fill(size int, fn func(x, y int) float32) (*Kernel, error) {
	if size <= 0 {
		return nil, ErrEmpty
	}
	rows := make([][]float32, size)
	for y := range rows {
		rows[y] = make([]float32, size)
		for x := range rows[y] {
			rows[y][x] = fn(x, y)
		}
	}
	return New(rows)
}

// Size returns the side length of the kernel.
func (k *Kernel) Size() int { return k.size }

// Width returns the kernel width. Equal to Size.
func (k *Kernel) Width() int { return k.size }

// Height returns the kernel height. Equal to Size.
func (k *Kernel) Height() int { return k.size }

// Center returns the index of the middle row and column.
func (k *Kernel) Center() int { return k.size / 2 }

// At returns the weight at column x, row y. It panics if (x, y) is outside the kernel.
func (k *Kernel) At(x, y int) float32 {
	if x < 0 || x >= k.size || y < 0 || y >= k.size {
		panic(fmt.Sprintf("kernel: At(%d, %d) outside %dx%d", x, y, k.size, k.size))
	}
	return k.weights[y*k.size+x]
}

// Weights returns the row-major weights. The slice must not be modified.
func (k *Kernel) Weights() []float32 { return k.weights }

// Rows returns a copy of the weights as rows[y][x].
func (k *Kernel) Rows() [][]float32 {
	rows := make([][]float32, k.size)
	for y := range rows {
		rows[y] = append([]float32(nil), k.weights[y*k.size:(y+1)*k.size]...)
	}
	return rows
}

// Sum returns the sum of all weights.
func (k *Kernel) Sum() float32 {
	var sum float32
	for _, w := range k.weights {
		sum += w
	}
	return sum
}

// Scale returns a new kernel with every weight multiplied by f.
func (k *Kernel) Scale(f float32) *Kernel {
	weights := make([]float32, len(k.weights))
	for i, w := range k.weights {
		weights[i] = w * f
	}
	return &Kernel{weights: weights, size: k.size}
}

// Normalized returns the kernel scaled so its weights sum to 1.
// Kernels summing to zero are returned unchanged.
func (k *Kernel) Normalized() *Kernel {
	sum := k.Sum()
	if sum == 0 {
		return k
	}
	return k.Scale(1 / sum)
}

// Pad returns a kernel grown by n rings of zero weights on every side.
// The original weights stay centered.
func (k *Kernel) Pad(n int) *Kernel {
	if n <= 0 {
		return k
	}
	size := k.size + 2*n
	weights := make([]float32, size*size)
	for y := 0; y < k.size; y++ {
		copy(weights[(y+n)*size+n:], k.weights[y*k.size:(y+1)*k.size])
	}
	return &Kernel{weights: weights, size: size}
}

// Equal reports whether both kernels have the same size and weights.
// A nil kernel equals only nil.
func (k *Kernel) Equal(other *Kernel) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k.size != other.size {
		return false
	}
	for i, w := range k.weights {
		if other.weights[i] != w {
			return false
		}
	}
	return true
}

func (k *Kernel) String() string {
	var b strings.Builder
	for y := 0; y < k.size; y++ {
		for x := 0; x < k.size; x++ {
			if x > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%8.4f", k.weights[y*k.size+x])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
