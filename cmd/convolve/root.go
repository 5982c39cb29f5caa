package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-convolve/pkg/config"
	"go-convolve/pkg/convolution"
	"go-convolve/pkg/kernel"
	"go-convolve/pkg/logging"
	"go-convolve/pkg/pipeline"
)

// options holds the global flags. Flags that were not set on the command
// line leave the configuration file values alone.
type options struct {
	configPath string

	kernel     string
	kernelSize int

	mode           string
	batch          int
	tileWidth      int
	tileHeight     int
	maxConcurrency int

	transformConcurrency int
	buffer               int

	redisAddr string

	logLevel  string
	logFormat string
	reportDir string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	o := &options{}
	def := config.Default()

	cmd := &cobra.Command{
		Use:           "convolve",
		Short:         "Apply convolution kernels to images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "YAML or JSON configuration file")
	f.StringVar(&o.kernel, "kernel", def.Kernel.Name, "kernel preset (see 'convolve kernels')")
	f.IntVar(&o.kernelSize, "kernel-size", def.Kernel.Size, "size of sized kernel presets (odd)")
	f.StringVar(&o.mode, "mode", def.Engine.Strategy, "partition strategy: sequential, rows, cols, rect, elems")
	f.IntVar(&o.batch, "batch", def.Engine.BatchSize, "rows or columns per work unit")
	f.IntVar(&o.tileWidth, "tile-width", def.Engine.TileWidth, "tile width for rect mode")
	f.IntVar(&o.tileHeight, "tile-height", def.Engine.TileHeight, "tile height for rect mode")
	f.IntVar(&o.maxConcurrency, "max-concurrency", def.Engine.MaxConcurrency, "max concurrently running tasks per image (0 = GOMAXPROCS)")
	f.IntVar(&o.transformConcurrency, "transform-concurrency", def.Pipeline.TransformConcurrency, "images filtered at once in dir mode")
	f.IntVar(&o.buffer, "buffer", def.Pipeline.BufferCapacity, "decoded images buffered ahead of the filters")
	f.StringVar(&o.redisAddr, "redis", def.Queue.RedisAddr, "Redis address for enqueue and worker (env "+config.EnvRedisAddr+")")
	f.StringVar(&o.logLevel, "log-level", def.Log.Level, "debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", def.Log.Format, "text or json")
	f.StringVar(&o.reportDir, "report-dir", def.ReportDir, "directory for run reports (empty disables)")
	f.DurationVar(&o.timeout, "timeout", 0, "abort the run after this long (0 = no limit)")

	cmd.AddCommand(
		newFileCmd(o),
		newDirCmd(o),
		newEnqueueCmd(o),
		newWorkerCmd(o),
		newKernelsCmd(),
	)
	return cmd
}

// settings resolves defaults, the config file, the environment and explicit flags, in that order.
func (o *options) settings(cmd *cobra.Command) (*config.FileConfig, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	changed := cmd.Flags().Changed
	if changed("kernel") {
		cfg.Kernel.Name = o.kernel
	}
	if changed("kernel-size") {
		cfg.Kernel.Size = o.kernelSize
	}
	if changed("mode") {
		cfg.Engine.Strategy = o.mode
	}
	if changed("batch") {
		cfg.Engine.BatchSize = o.batch
	}
	if changed("tile-width") {
		cfg.Engine.TileWidth = o.tileWidth
	}
	if changed("tile-height") {
		cfg.Engine.TileHeight = o.tileHeight
	}
	if changed("max-concurrency") {
		cfg.Engine.MaxConcurrency = o.maxConcurrency
	}
	if changed("transform-concurrency") {
		cfg.Pipeline.TransformConcurrency = o.transformConcurrency
	}
	if changed("buffer") {
		cfg.Pipeline.BufferCapacity = o.buffer
	}
	if changed("redis") {
		cfg.Queue.RedisAddr = o.redisAddr
	}
	if changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if changed("report-dir") {
		cfg.ReportDir = o.reportDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is everything a command needs after flag resolution.
type app struct {
	cfg    *config.FileConfig
	logger *slog.Logger
	engine *convolution.Engine
	kernel *kernel.Kernel
}

func (o *options) newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	engine, err := convolution.New(mode, convolution.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	k, err := cfg.BuildKernel()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, engine: engine, kernel: k}, nil
}

func (a *app) pipeline(k *kernel.Kernel) (*pipeline.Pipeline, error) {
	return pipeline.New(a.engine, k, pipeline.Config{
		TransformConcurrency: a.cfg.Pipeline.TransformConcurrency,
		BufferCapacity:       a.cfg.Pipeline.BufferCapacity,
	}, pipeline.WithLogger(a.logger))
}

// runContext is cancelled on SIGINT/SIGTERM and after --timeout.
func (o *options) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if o.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
