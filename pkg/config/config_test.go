package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-convolve/pkg/convolution"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	m, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, convolution.RectangleMode(256, 256), m)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
engine:
  strategy: rows
  batch_size: 4
  max_concurrency: 2
kernel:
  name: box
  size: 5
pipeline:
  buffer_capacity: 1
queue:
  visibility: 1m
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	m, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, convolution.RowsMode(4).WithMaxConcurrency(2), m)

	k, err := cfg.BuildKernel()
	require.NoError(t, err)
	assert.Equal(t, 5, k.Size())

	assert.Equal(t, 1, cfg.Pipeline.BufferCapacity)
	assert.Equal(t, 8, cfg.Pipeline.TransformConcurrency, "unset fields keep defaults")

	vis, err := cfg.Queue.VisibilityTimeout()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, vis)
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "engine": {"strategy": "sequential"},
  "kernel": {"name": "sharpen8"},
  "log": {"level": "debug", "format": "json"}
}`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	m, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, convolution.SequentialMode(), m)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "config.toml", "a = 1"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = LoadFile(writeFile(t, "bad.yaml", "engine: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse YAML")

	_, err = LoadFile(writeFile(t, "bad.json", "{"))
	assert.ErrorContains(t, err, "failed to parse JSON")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FileConfig)
	}{
		{"unknown strategy", func(c *FileConfig) { c.Engine.Strategy = "spiral" }},
		{"zero batch", func(c *FileConfig) { c.Engine.Strategy = "cols"; c.Engine.BatchSize = 0 }},
		{"negative concurrency", func(c *FileConfig) { c.Engine.MaxConcurrency = -1 }},
		{"even kernel", func(c *FileConfig) { c.Kernel.Size = 4 }},
		{"unknown kernel", func(c *FileConfig) { c.Kernel.Name = "blurry" }},
		{"zero transform concurrency", func(c *FileConfig) { c.Pipeline.TransformConcurrency = 0 }},
		{"zero buffer", func(c *FileConfig) { c.Pipeline.BufferCapacity = 0 }},
		{"bad block", func(c *FileConfig) { c.Queue.Block = "soon" }},
		{"negative visibility", func(c *FileConfig) { c.Queue.Visibility = "-1s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvRedisAddr, "redis.internal:6380")
	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "redis.internal:6380", cfg.Queue.RedisAddr)
}
