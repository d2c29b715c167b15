package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "vh", cfg.Catalog.Polarization)
	assert.Equal(t, "S1", cfg.Catalog.SatellitePrefix)
	assert.Equal(t, "txxxxxx", cfg.Catalog.FinalizedMarker)
	assert.Equal(t, "all", cfg.Catalog.Selection)
	assert.InDelta(t, 5.0, cfg.Thresholds.RiceDB, 1e-9)
	assert.InDelta(t, -18.0, cfg.Thresholds.UrbanDB, 1e-9)
	assert.InDelta(t, -18.0, cfg.Thresholds.WaterDB, 1e-9)
	assert.Equal(t, 1024, cfg.Processing.TileSize)
	assert.Equal(t, 4096, cfg.Processing.BlockSize)
	assert.Equal(t, DefaultThreads(), cfg.Processing.Threads)
	assert.Equal(t, 128, cfg.Processing.ChunkMultiplier)
	assert.InDelta(t, 0.0013, cfg.Processing.NoiseFloor, 1e-12)
	assert.InDelta(t, 20.0, cfg.Processing.MinGapDays, 1e-9)
	assert.Equal(t, 20, cfg.Morphology.MinObjectSize)
	assert.Equal(t, 20, cfg.Morphology.MaxHoleSize)
	assert.Equal(t, "deflate", cfg.Compression())
	assert.Equal(t, "EPSG:4326", cfg.Output.ReprojectSRS)
	assert.Equal(t, "ricemaps", cfg.Output.Subdir)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
thresholds:
  rice_db: 4.5
processing:
  tile_size: 256
  block_size: 512
  threads: 3
output:
  compat_mode: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ricemap.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 4.5, cfg.Thresholds.RiceDB, 1e-9)
	assert.Equal(t, 256, cfg.Processing.TileSize)
	assert.Equal(t, 512, cfg.Processing.BlockSize)
	assert.Equal(t, 3, cfg.Processing.Threads)
	assert.Equal(t, "lzw", cfg.Compression())
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.InDelta(t, -18.0, cfg.Thresholds.WaterDB, 1e-9)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	dir := chdirTemp(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ricemap.yaml"), []byte("processing:\n  threads: 3\n"), 0644))
	t.Setenv("RICEMAP_PROCESSING_THREADS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Processing.Threads)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero tile", func(c *Config) { c.Processing.TileSize = 0 }},
		{"tile not multiple of 16", func(c *Config) { c.Processing.TileSize = 100; c.Processing.BlockSize = 400 }},
		{"zero block", func(c *Config) { c.Processing.BlockSize = 0 }},
		{"block not multiple of tile", func(c *Config) { c.Processing.BlockSize = 1500 }},
		{"zero threads", func(c *Config) { c.Processing.Threads = 0 }},
		{"zero multiplier", func(c *Config) { c.Processing.ChunkMultiplier = 0 }},
		{"negative floor", func(c *Config) { c.Processing.NoiseFloor = -1 }},
		{"bad selection", func(c *Config) { c.Catalog.Selection = "some" }},
		{"negative morphology", func(c *Config) { c.Morphology.MaxHoleSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalid))
		})
	}
}

func TestSmallTilesAreAllowed(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Processing.TileSize = 8
	cfg.Processing.BlockSize = 24
	assert.NoError(t, cfg.Validate())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "console"}))
}

func TestWriteYAMLLoadsBack(t *testing.T) {
	dir := chdirTemp(t)
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Thresholds.RiceDB = 4.5
	cfg.Monitor.Interval = 2 * time.Second
	cfg.Output.Masks = true

	path := filepath.Join(dir, "dump.yaml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, cfg.WriteYAML(f))
	require.NoError(t, f.Close())

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, *cfg, *back)
}
