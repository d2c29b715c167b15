package config

import (
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configuration or argument values the pipeline cannot run with.
var ErrInvalid = eris.New("config: invalid")

// Config holds the full application configuration.
type Config struct {
	Catalog      CatalogConfig      `yaml:"catalog" mapstructure:"catalog"`
	Thresholds   ThresholdsConfig   `yaml:"thresholds" mapstructure:"thresholds"`
	Processing   ProcessingConfig   `yaml:"processing" mapstructure:"processing"`
	Morphology   MorphologyConfig   `yaml:"morphology" mapstructure:"morphology"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Monitor      MonitorConfig      `yaml:"monitor" mapstructure:"monitor"`
	Notification NotificationConfig `yaml:"notification" mapstructure:"notification"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// CatalogConfig controls which files of the source directory are scenes.
type CatalogConfig struct {
	Polarization    string `yaml:"polarization" mapstructure:"polarization"`
	SatellitePrefix string `yaml:"satellite_prefix" mapstructure:"satellite_prefix"`
	Extension       string `yaml:"extension" mapstructure:"extension"`
	FinalizedMarker string `yaml:"finalized_marker" mapstructure:"finalized_marker"`
	Selection       string `yaml:"selection" mapstructure:"selection"`
}

// ThresholdsConfig holds the classification thresholds in dB.
type ThresholdsConfig struct {
	RiceDB  float64 `yaml:"rice_db" mapstructure:"rice_db"`
	UrbanDB float64 `yaml:"urban_db" mapstructure:"urban_db"`
	WaterDB float64 `yaml:"water_db" mapstructure:"water_db"`
}

// ProcessingConfig sizes blocks, chunks and workers.
type ProcessingConfig struct {
	TileSize        int     `yaml:"tile_size" mapstructure:"tile_size"`
	BlockSize       int     `yaml:"block_size" mapstructure:"block_size"`
	Threads         int     `yaml:"threads" mapstructure:"threads"`
	ChunkMultiplier int     `yaml:"chunk_multiplier" mapstructure:"chunk_multiplier"`
	NoiseFloor      float64 `yaml:"noise_floor" mapstructure:"noise_floor"`
	MinGapDays      float64 `yaml:"min_gap_days" mapstructure:"min_gap_days"`
}

// MorphologyConfig sizes the cleanup applied after each threshold test.
type MorphologyConfig struct {
	MinObjectSize int `yaml:"min_object_size" mapstructure:"min_object_size"`
	MaxHoleSize   int `yaml:"max_hole_size" mapstructure:"max_hole_size"`
}

// OutputConfig configures the written products.
type OutputConfig struct {
	Compression       string `yaml:"compression" mapstructure:"compression"`
	CompatCompression string `yaml:"compat_compression" mapstructure:"compat_compression"`
	CompatMode        bool   `yaml:"compat_mode" mapstructure:"compat_mode"`
	ReprojectSRS      string `yaml:"reproject_srs" mapstructure:"reproject_srs"`
	Intermediate      bool   `yaml:"intermediate" mapstructure:"intermediate"`
	Masks             bool   `yaml:"masks" mapstructure:"masks"`
	Subdir            string `yaml:"subdir" mapstructure:"subdir"`
	Manifest          bool   `yaml:"manifest" mapstructure:"manifest"`
}

// MonitorConfig configures the peak memory sampler.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// NotificationConfig holds optional Discord webhook URLs.
type NotificationConfig struct {
	DiscordSuccessURL string `yaml:"discord_success_url" mapstructure:"discord_success_url"`
	DiscordErrorURL   string `yaml:"discord_error_url" mapstructure:"discord_error_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level    string `yaml:"level" mapstructure:"level"`
	Format   string `yaml:"format" mapstructure:"format"`
	Progress bool   `yaml:"progress" mapstructure:"progress"`
}

// DefaultThreads mirrors the host dependent default of the worker count.
func DefaultThreads() int {
	n := runtime.NumCPU()
	if n < 16 {
		n /= 2
	} else {
		n /= 4
	}
	return max(4, n)
}

// Load reads configuration from an optional file, .env files and the environment.
// An empty path searches ricemap.yaml in the working directory.
func Load(path string) (*Config, error) {
	// .env is optional, the same way the CLI looked for it next to the binary
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("../.env")
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ricemap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RICEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.polarization", "vh")
	v.SetDefault("catalog.satellite_prefix", "S1")
	v.SetDefault("catalog.extension", ".tif")
	v.SetDefault("catalog.finalized_marker", "txxxxxx")
	v.SetDefault("catalog.selection", "all")
	v.SetDefault("thresholds.rice_db", 5.0)
	v.SetDefault("thresholds.urban_db", -18.0)
	v.SetDefault("thresholds.water_db", -18.0)
	v.SetDefault("processing.tile_size", 1024)
	v.SetDefault("processing.block_size", 4096)
	v.SetDefault("processing.threads", DefaultThreads())
	v.SetDefault("processing.chunk_multiplier", 128)
	v.SetDefault("processing.noise_floor", 0.0013)
	v.SetDefault("processing.min_gap_days", 20.0)
	v.SetDefault("morphology.min_object_size", 20)
	v.SetDefault("morphology.max_hole_size", 20)
	v.SetDefault("output.compression", "deflate")
	v.SetDefault("output.compat_compression", "lzw")
	v.SetDefault("output.reproject_srs", "EPSG:4326")
	v.SetDefault("output.subdir", "ricemaps")
	v.SetDefault("output.manifest", true)
	v.SetDefault("monitor.interval", time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.progress", true)
}

// Compression returns the codec selected by the compatibility switch.
func (c *Config) Compression() string {
	if c.Output.CompatMode {
		return c.Output.CompatCompression
	}
	return c.Output.Compression
}

// WriteYAML writes the effective configuration in the same layout Load reads.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return eris.Wrap(enc.Close(), "config: flush yaml")
}

// Validate checks the values the pipeline relies on.
func (c *Config) Validate() error {
	p := c.Processing
	switch {
	case p.TileSize <= 0:
		return eris.Wrapf(ErrInvalid, "tile_size must be positive, got %d", p.TileSize)
	case p.TileSize >= 16 && p.TileSize%16 != 0:
		return eris.Wrapf(ErrInvalid, "tile_size must be a multiple of 16, got %d", p.TileSize)
	case p.BlockSize <= 0:
		return eris.Wrapf(ErrInvalid, "block_size must be positive, got %d", p.BlockSize)
	case p.BlockSize%p.TileSize != 0:
		return eris.Wrapf(ErrInvalid, "block_size %d is not a multiple of tile_size %d", p.BlockSize, p.TileSize)
	case p.Threads <= 0:
		return eris.Wrapf(ErrInvalid, "threads must be positive, got %d", p.Threads)
	case p.ChunkMultiplier <= 0:
		return eris.Wrapf(ErrInvalid, "chunk_multiplier must be positive, got %d", p.ChunkMultiplier)
	case p.NoiseFloor < 0:
		return eris.Wrapf(ErrInvalid, "noise_floor must not be negative, got %g", p.NoiseFloor)
	}

	switch strings.ToLower(c.Catalog.Selection) {
	case "all", "finalized", "unfinalized":
	default:
		return eris.Wrapf(ErrInvalid, "unknown selection mode %q", c.Catalog.Selection)
	}

	if c.Morphology.MinObjectSize < 0 || c.Morphology.MaxHoleSize < 0 {
		return eris.Wrap(ErrInvalid, "morphology sizes must not be negative")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
