package convolution

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned for modes with non-positive batch or tile sizes.
var ErrInvalidMode = errors.New("convolution: invalid mode")

// Strategy selects how the coordinate space of a grid is split into work units.
type Strategy int

const (
	Sequential Strategy = iota
	ParallelRows
	ParallelCols
	ParallelRectangle
	ParallelElems
)

// DefaultSequentialConcurrency is the channel-level budget of SequentialMode.
const DefaultSequentialConcurrency = 3

func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case ParallelRows:
		return "rows"
	case ParallelCols:
		return "cols"
	case ParallelRectangle:
		return "rect"
	case ParallelElems:
		return "elems"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name (as printed by String) back to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "sequential", "seq":
		return Sequential, nil
	case "rows":
		return ParallelRows, nil
	case "cols", "columns":
		return ParallelCols, nil
	case "rect", "rectangle", "tiles":
		return ParallelRectangle, nil
	case "elems", "pixels":
		return ParallelElems, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidMode, name)
	}
}

// Mode is a partition strategy plus its concurrency budget.
// Only the fields used by Strategy are meaningful.
type Mode struct {
	Strategy Strategy

	// BatchSize is the band thickness for ParallelRows and ParallelCols.
	BatchSize int

	// TileWidth and TileHeight size the tiles of ParallelRectangle.
	TileWidth  int
	TileHeight int

	// MaxConcurrency caps concurrently running tasks. 0 means GOMAXPROCS.
	MaxConcurrency int
}

// SequentialMode processes each channel as a single work unit.
func SequentialMode() Mode {
	return Mode{Strategy: Sequential, MaxConcurrency: DefaultSequentialConcurrency}
}

// RowsMode splits the grid into bands of batchSize rows.
func RowsMode(batchSize int) Mode {
	return Mode{Strategy: ParallelRows, BatchSize: batchSize}
}

// ColsMode splits the grid into bands of batchSize columns.
func ColsMode(batchSize int) Mode {
	return Mode{Strategy: ParallelCols, BatchSize: batchSize}
}

// RectangleMode splits the grid into tileWidth×tileHeight tiles.
func RectangleMode(tileWidth, tileHeight int) Mode {
	return Mode{Strategy: ParallelRectangle, TileWidth: tileWidth, TileHeight: tileHeight}
}

// ElemsMode schedules every pixel as its own work unit.
func ElemsMode() Mode {
	return Mode{Strategy: ParallelElems}
}

// WithMaxConcurrency returns a copy of m with the given budget.
func (m Mode) WithMaxConcurrency(n int) Mode {
	m.MaxConcurrency = n
	return m
}

// Validate checks the parameters used by m.Strategy.
func (m Mode) Validate() error {
	if m.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max concurrency %d is negative", ErrInvalidMode, m.MaxConcurrency)
	}
	switch m.Strategy {
	case Sequential, ParallelElems:
		return nil
	case ParallelRows, ParallelCols:
		if m.BatchSize <= 0 {
			return fmt.Errorf("%w: %s batch size must be positive, got %d", ErrInvalidMode, m.Strategy, m.BatchSize)
		}
		return nil
	case ParallelRectangle:
		if m.TileWidth <= 0 || m.TileHeight <= 0 {
			return fmt.Errorf("%w: tile size must be positive, got %dx%d", ErrInvalidMode, m.TileWidth, m.TileHeight)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown strategy %d", ErrInvalidMode, int(m.Strategy))
	}
}

func (m Mode) String() string {
	var params string
	switch m.Strategy {
	case ParallelRows, ParallelCols:
		params = fmt.Sprintf("batch=%d ", m.BatchSize)
	case ParallelRectangle:
		params = fmt.Sprintf("tile=%dx%d ", m.TileWidth, m.TileHeight)
	}
	return fmt.Sprintf("%s(%smax=%d)", m.Strategy, params, m.MaxConcurrency)
}
