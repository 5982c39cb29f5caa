// Package config loads run settings from YAML or JSON files.
//
// Values absent from the file keep their Default. Command-line flags are
// applied on top by the caller.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-convolve/pkg/convolution"
	"go-convolve/pkg/kernel"
)

// EnvRedisAddr overrides Queue.RedisAddr when set.
const EnvRedisAddr = "CONVOLVE_REDIS_ADDR"

// FileConfig is the configuration file layout.
type FileConfig struct {
	Engine    EngineConfig   `yaml:"engine" json:"engine"`
	Kernel    KernelConfig   `yaml:"kernel" json:"kernel"`
	Pipeline  PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Queue     QueueConfig    `yaml:"queue" json:"queue"`
	Log       LogConfig      `yaml:"log" json:"log"`
	ReportDir string         `yaml:"report_dir" json:"report_dir"`
}

// EngineConfig selects the partition strategy and its parameters.
type EngineConfig struct {
	Strategy       string `yaml:"strategy" json:"strategy"`
	BatchSize      int    `yaml:"batch_size" json:"batch_size"`
	TileWidth      int    `yaml:"tile_width" json:"tile_width"`
	TileHeight     int    `yaml:"tile_height" json:"tile_height"`
	MaxConcurrency int    `yaml:"max_concurrency" json:"max_concurrency"`
}

// KernelConfig names a kernel preset. Size applies to sized presets only.
type KernelConfig struct {
	Name string `yaml:"name" json:"name"`
	Size int    `yaml:"size" json:"size"`
}

// PipelineConfig sizes the directory pipeline.
type PipelineConfig struct {
	TransformConcurrency int `yaml:"transform_concurrency" json:"transform_concurrency"`
	BufferCapacity       int `yaml:"buffer_capacity" json:"buffer_capacity"`
}

// QueueConfig configures the Redis streams used by enqueue and worker.
type QueueConfig struct {
	RedisAddr  string `yaml:"redis_addr" json:"redis_addr"`
	Prefix     string `yaml:"prefix" json:"prefix"`
	Block      string `yaml:"block" json:"block"`
	Visibility string `yaml:"visibility" json:"visibility"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in settings.
func Default() *FileConfig {
	return &FileConfig{
		Engine: EngineConfig{
			Strategy:   convolution.ParallelRectangle.String(),
			BatchSize:  16,
			TileWidth:  256,
			TileHeight: 256,
		},
		Kernel: KernelConfig{Name: "gaussian", Size: 15},
		Pipeline: PipelineConfig{
			TransformConcurrency: 8,
			BufferCapacity:       10,
		},
		Queue: QueueConfig{
			RedisAddr:  "localhost:6379",
			Prefix:     "convolve",
			Block:      "5s",
			Visibility: "30s",
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		ReportDir: "logs",
	}
}

// LoadFile reads path over the defaults. The format is chosen by extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}

// ApplyEnv copies environment overrides into f.
func (f *FileConfig) ApplyEnv() {
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		f.Queue.RedisAddr = addr
	}
}

// Validate checks every section.
func (f *FileConfig) Validate() error {
	if _, err := f.Mode(); err != nil {
		return err
	}
	if _, err := f.BuildKernel(); err != nil {
		return err
	}
	if f.Pipeline.TransformConcurrency <= 0 {
		return fmt.Errorf("pipeline.transform_concurrency must be positive")
	}
	if f.Pipeline.BufferCapacity <= 0 {
		return fmt.Errorf("pipeline.buffer_capacity must be positive")
	}
	if _, err := f.Queue.BlockTimeout(); err != nil {
		return err
	}
	if _, err := f.Queue.VisibilityTimeout(); err != nil {
		return err
	}
	return nil
}

// Mode converts the engine section into a validated convolution.Mode.
func (f *FileConfig) Mode() (convolution.Mode, error) {
	s, err := convolution.ParseStrategy(f.Engine.Strategy)
	if err != nil {
		return convolution.Mode{}, err
	}
	var m convolution.Mode
	switch s {
	case convolution.Sequential:
		m = convolution.SequentialMode()
	case convolution.ParallelRows:
		m = convolution.RowsMode(f.Engine.BatchSize)
	case convolution.ParallelCols:
		m = convolution.ColsMode(f.Engine.BatchSize)
	case convolution.ParallelRectangle:
		m = convolution.RectangleMode(f.Engine.TileWidth, f.Engine.TileHeight)
	case convolution.ParallelElems:
		m = convolution.ElemsMode()
	}
	if f.Engine.MaxConcurrency != 0 {
		m = m.WithMaxConcurrency(f.Engine.MaxConcurrency)
	}
	if err := m.Validate(); err != nil {
		return convolution.Mode{}, err
	}
	return m, nil
}

// BuildKernel resolves the kernel section through the preset catalog.
func (f *FileConfig) BuildKernel() (*kernel.Kernel, error) {
	return kernel.ByName(f.Kernel.Name, f.Kernel.Size)
}

// BlockTimeout is how long a worker blocks on an empty stream.
func (q QueueConfig) BlockTimeout() (time.Duration, error) {
	return parseDuration("queue.block", q.Block)
}

// VisibilityTimeout is how long a job may stay pending before another worker claims it.
func (q QueueConfig) VisibilityTimeout() (time.Duration, error) {
	return parseDuration("queue.visibility", q.Visibility)
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}
