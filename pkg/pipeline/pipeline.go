// Package pipeline filters every image of a directory.
//
// Run overlaps three stages connected by channels:
//
//	load ──(buffer of BufferCapacity)──▶ transform ×TransformConcurrency ──▶ save
//
// The load stage blocks when the buffer is full, so at most BufferCapacity
// decoded images wait for a transformer. Transformers emit in completion
// order. RunSequential is the non-overlapping baseline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"go-convolve/pkg/convolution"
	"go-convolve/pkg/imageio"
	"go-convolve/pkg/kernel"
	"go-convolve/pkg/stats"
)

// ErrInvalidConfig is returned for non-positive pipeline sizes.
var ErrInvalidConfig = errors.New("pipeline: invalid config")

// NamedImage is a decoded image and the file name it was read from.
type NamedImage struct {
	Name  string
	Image image.Image
}

// Config sizes the stages of Run.
type Config struct {
	TransformConcurrency int
	BufferCapacity       int
}

// DefaultConfig returns 8 transformers and a buffer of 10 images.
func DefaultConfig() Config {
	return Config{TransformConcurrency: 8, BufferCapacity: 10}
}

func (c Config) Validate() error {
	if c.TransformConcurrency <= 0 {
		return fmt.Errorf("%w: transform concurrency must be positive, got %d", ErrInvalidConfig, c.TransformConcurrency)
	}
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("%w: buffer capacity must be positive, got %d", ErrInvalidConfig, c.BufferCapacity)
	}
	return nil
}

// Convolver filters one image. *convolution.Engine implements it.
type Convolver interface {
	Convolve(ctx context.Context, img image.Image, k *kernel.Kernel) (image.Image, error)
}

// Pipeline applies one kernel with one Convolver to files.
type Pipeline struct {
	engine Convolver
	kernel *kernel.Kernel
	cfg    Config
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for stage records.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pipeline. cfg is validated here.
func New(engine Convolver, k *kernel.Kernel, cfg Config, opts ...Option) (*Pipeline, error) {
	if k == nil {
		return nil, convolution.ErrNilKernel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{engine: engine, kernel: k, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the stage sizes.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// job carries one image through the stages.
type job struct {
	NamedImage
	input string
	start time.Time
}

func (p *Pipeline) newRecorder(algorithm string) *stats.Recorder {
	mode := ""
	if m, ok := p.engine.(interface{ Mode() convolution.Mode }); ok {
		mode = m.Mode().String()
	}
	return stats.NewRecorder(algorithm, mode, p.kernel.Size())
}

// Run filters every regular file of inDir into outDir, overlapping load,
// transform and save.
//
// A file that fails to load, convolve or save is recorded in the report and
// the run continues. Run returns an error only when the directory cannot be
// listed or created, or when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, inDir, outDir string) (stats.Report, error) {
	rec := p.newRecorder("Pipelined")
	rec.SetPipeline(p.cfg.TransformConcurrency, p.cfg.BufferCapacity)

	names, err := imageio.ListFiles(inDir)
	if err != nil {
		return rec.Finish(), err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return rec.Finish(), fmt.Errorf("failed to create output directory: %w", err)
	}
	p.logger.Info("pipeline: starting", "input", inDir, "output", outDir, "files", len(names),
		"transform_concurrency", p.cfg.TransformConcurrency, "buffer_capacity", p.cfg.BufferCapacity)

	loaded := make(chan job, p.cfg.BufferCapacity)
	transformed := make(chan job)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(loaded)
		return p.load(gctx, inDir, names, loaded, rec)
	})

	var transformers errgroup.Group
	for i := 0; i < p.cfg.TransformConcurrency; i++ {
		transformers.Go(func() error {
			return p.transform(gctx, loaded, transformed, rec)
		})
	}
	g.Go(func() error {
		defer close(transformed)
		return transformers.Wait()
	})

	g.Go(func() error {
		p.save(outDir, transformed, rec)
		return nil
	})

	err = g.Wait()
	report := rec.Finish()
	p.logger.Info("pipeline: finished", "written", report.Succeeded(),
		"failed", len(report.Images)-report.Succeeded(), "elapsed", report.TotalTime)
	return report, err
}

func (p *Pipeline) load(ctx context.Context, inDir string, names []string, out chan<- job, rec *stats.Recorder) error {
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		path := filepath.Join(inDir, name)
		img, err := imageio.Load(path)
		if err != nil {
			p.logger.Warn("pipeline: load failed", "name", name, "error", err)
			rec.Record(stats.ImageRecord{Name: name, InputPath: path, Duration: time.Since(start), Err: err})
			continue
		}
		p.logger.Debug("pipeline: loaded", "name", name,
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

		select {
		case out <- job{NamedImage: NamedImage{Name: name, Image: img}, input: path, start: start}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) transform(ctx context.Context, in <-chan job, out chan<- job, rec *stats.Recorder) error {
	for j := range in {
		img, err := p.engine.Convolve(ctx, j.Image, p.kernel)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.logger.Warn("pipeline: convolve failed", "name", j.Name, "error", err)
			rec.Record(stats.ImageRecord{Name: j.Name, InputPath: j.input, Duration: time.Since(j.start), Err: err})
			continue
		}
		j.Image = img

		select {
		case out <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) save(outDir string, in <-chan job, rec *stats.Recorder) {
	for j := range in {
		path := filepath.Join(outDir, j.Name)
		r := stats.ImageRecord{
			Name:       j.Name,
			InputPath:  j.input,
			OutputPath: path,
			Width:      j.Image.Bounds().Dx(),
			Height:     j.Image.Bounds().Dy(),
		}
		if err := imageio.Save(path, j.Image); err != nil {
			p.logger.Warn("pipeline: save failed", "name", j.Name, "error", err)
			r.OutputPath = ""
			r.Err = err
		} else {
			p.logger.Debug("pipeline: saved", "name", j.Name, "path", path)
		}
		r.Duration = time.Since(j.start)
		rec.Record(r)
	}
}

// RunSequential loads, filters and saves the files of inDir one at a time.
// The first failure stops the run and is returned along with the records so far.
func (p *Pipeline) RunSequential(ctx context.Context, inDir, outDir string) (stats.Report, error) {
	rec := p.newRecorder("Sequential")

	names, err := imageio.ListFiles(inDir)
	if err != nil {
		return rec.Finish(), err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return rec.Finish(), fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return rec.Finish(), err
		}
		r, err := p.RunFile(ctx, filepath.Join(inDir, name), filepath.Join(outDir, name))
		rec.Record(r)
		if err != nil {
			return rec.Finish(), fmt.Errorf("%s: %w", name, err)
		}
	}
	return rec.Finish(), nil
}

// RunFile filters a single file. outPath is written only if every step succeeds.
func (p *Pipeline) RunFile(ctx context.Context, inPath, outPath string) (stats.ImageRecord, error) {
	start := time.Now()
	r := stats.ImageRecord{Name: filepath.Base(inPath), InputPath: inPath}
	fail := func(err error) (stats.ImageRecord, error) {
		r.Duration = time.Since(start)
		r.Err = err
		return r, err
	}

	img, err := imageio.Load(inPath)
	if err != nil {
		return fail(err)
	}
	out, err := p.engine.Convolve(ctx, img, p.kernel)
	if err != nil {
		return fail(fmt.Errorf("failed to convolve %s: %w", inPath, err))
	}
	if err := imageio.Save(outPath, out); err != nil {
		return fail(err)
	}

	r.OutputPath = outPath
	r.Width, r.Height = out.Bounds().Dx(), out.Bounds().Dy()
	r.Duration = time.Since(start)
	p.logger.Debug("pipeline: file done", "input", inPath, "output", outPath, "elapsed", r.Duration)
	return r, nil
}
