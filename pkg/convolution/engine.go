// Package convolution applies square kernels to images and single-channel grids.
//
// The work of one call is split into disjoint work units by a Mode and run on
// a workerpool.Pool created for that call. For multi-channel images the
// per-channel steps and the per-unit steps share that pool, so the whole call
// never has more than Mode.MaxConcurrency tasks running.
//
// Every output pixel is computed by Sample, a pure function of the input grid,
// the kernel and the coordinate, so all strategies produce bit-identical output.
package convolution

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"go-convolve/pkg/grid"
	"go-convolve/pkg/kernel"
	"go-convolve/pkg/workerpool"
)

var (
	// ErrSizeMismatch is returned when input and output grids differ in size.
	ErrSizeMismatch = errors.New("convolution: input and output sizes differ")
	// ErrNilKernel is returned when no kernel is given.
	ErrNilKernel = errors.New("convolution: nil kernel")
)

// Engine convolves images with a fixed Mode.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	mode   Mode
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-call debug records.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine for mode. Invalid modes are rejected here.
func New(mode Mode, opts ...Option) (*Engine, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{mode: mode, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Mode returns the engine's mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Convolve returns img filtered by k, with the same size and layout.
//
// Validation (kernel, layout) happens before any task is scheduled. The call
// returns once every work unit of every channel has finished; on error or
// cancellation no partial image is returned.
func (e *Engine) Convolve(ctx context.Context, img image.Image, k *kernel.Kernel) (image.Image, error) {
	if k == nil {
		return nil, ErrNilKernel
	}
	layout, err := DetectLayout(img)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	p := newPlanes(img, layout)
	pool := workerpool.New(e.mode.MaxConcurrency)

	// Channel steps run outside the pool: they would hold a slot while waiting
	// for their own units. Only their extract and store work is admitted.
	g, gctx := errgroup.WithContext(ctx)
	for c := range layout.Channels() {
		g.Go(func() error {
			return e.convolveChannel(gctx, pool, p, c, k)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("convolution: image done",
		"layout", layout,
		"width", p.width,
		"height", p.height,
		"kernel", k.Size(),
		"mode", e.mode,
		"peak_tasks", pool.Peak(),
		"elapsed", time.Since(start))
	return p.output(), nil
}

func (e *Engine) convolveChannel(ctx context.Context, pool *workerpool.Pool, p *planes, c int, k *kernel.Kernel) error {
	var in *grid.Grid[uint8]
	if err := pool.Do(ctx, func() error {
		in = p.extract(c)
		return nil
	}); err != nil {
		return err
	}

	out := grid.New[uint8](in.Width(), in.Height())
	if err := run[uint8](ctx, pool, e.mode, in, k, out, RoundClampU8); err != nil {
		return fmt.Errorf("channel %d: %w", c, err)
	}

	return pool.Do(ctx, func() error {
		p.store(c, out)
		return nil
	})
}

// ConvolveGrid filters a single 8-bit channel.
func (e *Engine) ConvolveGrid(ctx context.Context, in *grid.Grid[uint8], k *kernel.Kernel) (*grid.Grid[uint8], error) {
	out := grid.New[uint8](in.Width(), in.Height())
	if err := Into[uint8](ctx, e.mode, in, k, out, RoundClampU8); err != nil {
		return nil, err
	}
	return out, nil
}

// Into filters in by k into out using mode, converting samples with transform.
// in and out must have the same size.
func Into[T grid.Sample](ctx context.Context, mode Mode, in grid.Reader[T], k *kernel.Kernel, out grid.Writer[T], transform Transform[T]) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	return run(ctx, workerpool.New(mode.MaxConcurrency), mode, in, k, out, transform)
}

// run validates its arguments, then dispatches one task per work unit on pool
// and waits for all of them.
func run[T grid.Sample](ctx context.Context, pool *workerpool.Pool, mode Mode, in grid.Reader[T], k *kernel.Kernel, out grid.Writer[T], transform Transform[T]) error {
	if k == nil {
		return ErrNilKernel
	}
	if !grid.SameSize(in, out) {
		return fmt.Errorf("%w: input %dx%d, output %dx%d",
			ErrSizeMismatch, in.Width(), in.Height(), out.Width(), out.Height())
	}

	batch := pool.Batch(ctx)
	var dispatchErr error
	for r := range Partition(mode, in.Width(), in.Height()) {
		dispatchErr = batch.Go(func(context.Context) error {
			sampleRect(in, k, out, transform, r)
			return nil
		})
		if dispatchErr != nil {
			break
		}
	}
	if err := batch.Wait(); err != nil {
		return err
	}
	return dispatchErr
}

// ComposeKernels convolves kernel a with kernel b, clamping weights to [0, 255].
// The result has the size of a.
func ComposeKernels(ctx context.Context, a, b *kernel.Kernel) (*kernel.Kernel, error) {
	if a == nil || b == nil {
		return nil, ErrNilKernel
	}
	in, err := grid.FromRows(a.Rows())
	if err != nil {
		return nil, err
	}
	out := grid.New[float32](a.Size(), a.Size())
	if err := Into[float32](ctx, SequentialMode(), in, b, out, ClampF32); err != nil {
		return nil, err
	}
	return kernel.New(out.Rows())
}
