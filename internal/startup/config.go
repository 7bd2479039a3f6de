package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gallery-pipeline/internal/derivative"
	"gallery-pipeline/internal/filesystem"
	"gallery-pipeline/internal/logging"
	"gallery-pipeline/internal/media"
	"gallery-pipeline/internal/mediatypes"
	"gallery-pipeline/internal/metadata"
	"gallery-pipeline/internal/pipeline"
)

// Config holds all application configuration. Values are layered: defaults,
// then the YAML file, then environment variables, then command-line flags.
type Config struct {
	SourceDir         string   `yaml:"source_dir"`
	OutputDir         string   `yaml:"output_dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`

	ThumbnailSize    int    `yaml:"thumbnail_size"`
	PreviewSize      int    `yaml:"preview_size"`
	ThumbnailQuality int    `yaml:"thumbnail_quality"`
	PreviewQuality   int    `yaml:"preview_quality"`
	OutputFormat     string `yaml:"output_format"`
	BackendMode      string `yaml:"backend_mode"`
	OutputLayout     string `yaml:"output_layout"`

	Workers       int                `yaml:"workers"`
	SkipUnchanged bool               `yaml:"skip_unchanged"`
	Precision     metadata.Precision `yaml:"precision"`

	// MetricsFile, if set, receives a Prometheus textfile after every run.
	MetricsFile string `yaml:"metrics_file"`
	// MetricsAddr, if set, serves /metrics and /healthz in watch mode.
	MetricsAddr string `yaml:"metrics_addr"`

	WatchDebounce  time.Duration `yaml:"watch_debounce"`
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		SourceDir:         "/photos",
		OutputDir:         "/gallery",
		AllowedExtensions: append([]string(nil), mediatypes.DefaultAllowedExtensions...),
		ThumbnailSize:     300,
		PreviewSize:       1600,
		ThumbnailQuality:  80,
		PreviewQuality:    85,
		OutputFormat:      string(media.FormatJPEG),
		BackendMode:       string(media.ModeAuto),
		OutputLayout:      string(pipeline.LayoutYearFirst),
		Precision:         metadata.DefaultPrecision(),
		WatchDebounce:     2 * time.Second,
	}
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// and the environment. A missing file is not an error; an empty path skips
// the file entirely.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logging.Debug("Config file %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.SourceDir = getEnv("SOURCE_DIR", c.SourceDir)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	if exts := getEnv("ALLOWED_EXTENSIONS", ""); exts != "" {
		c.AllowedExtensions = splitList(exts)
	}
	c.ThumbnailSize = getEnvInt("THUMBNAIL_SIZE", c.ThumbnailSize)
	c.PreviewSize = getEnvInt("PREVIEW_SIZE", c.PreviewSize)
	c.ThumbnailQuality = getEnvInt("THUMBNAIL_QUALITY", c.ThumbnailQuality)
	c.PreviewQuality = getEnvInt("PREVIEW_QUALITY", c.PreviewQuality)
	c.OutputFormat = getEnv("OUTPUT_FORMAT", c.OutputFormat)
	c.BackendMode = getEnv("BACKEND_MODE", c.BackendMode)
	c.OutputLayout = getEnv("OUTPUT_LAYOUT", c.OutputLayout)
	c.SkipUnchanged = getEnvBool("SKIP_UNCHANGED", c.SkipUnchanged)
	c.MetricsFile = getEnv("METRICS_FILE", c.MetricsFile)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.WatchDebounce = getEnvDuration("WATCH_DEBOUNCE", c.WatchDebounce)
	c.RescanInterval = getEnvDuration("RESCAN_INTERVAL", c.RescanInterval)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SourceDir == "" {
		errs = append(errs, errors.New("source_dir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.SourceDir != "" && c.OutputDir != "" && filepath.Clean(c.SourceDir) == filepath.Clean(c.OutputDir) {
		errs = append(errs, errors.New("output_dir must differ from source_dir"))
	}
	if len(splitList(strings.Join(c.AllowedExtensions, ","))) == 0 {
		errs = append(errs, errors.New("allowed_extensions must not be empty"))
	}
	if c.ThumbnailSize <= 0 {
		errs = append(errs, fmt.Errorf("thumbnail_size must be positive, got %d", c.ThumbnailSize))
	}
	if c.PreviewSize <= 0 {
		errs = append(errs, fmt.Errorf("preview_size must be positive, got %d", c.PreviewSize))
	}
	if c.ThumbnailQuality < 1 || c.ThumbnailQuality > 100 {
		errs = append(errs, fmt.Errorf("thumbnail_quality must be 1-100, got %d", c.ThumbnailQuality))
	}
	if c.PreviewQuality < 1 || c.PreviewQuality > 100 {
		errs = append(errs, fmt.Errorf("preview_quality must be 1-100, got %d", c.PreviewQuality))
	}
	if _, err := media.ParseFormat(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	if _, err := media.ParseMode(c.BackendMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := pipeline.ParseLayout(c.OutputLayout); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	p := c.Precision
	for name, places := range map[string]int{
		"exposure": p.Exposure, "shutter_speed": p.ShutterSpeed, "iso": p.ISO,
		"fnumber": p.FNumber, "focal_length": p.FocalLength,
	} {
		if places < 0 || places > 10 {
			errs = append(errs, fmt.Errorf("precision.%s must be 0-10, got %d", name, places))
		}
	}
	if c.WatchDebounce < 0 || c.RescanInterval < 0 {
		errs = append(errs, errors.New("watch durations must not be negative"))
	}

	return errors.Join(errs...)
}

// Mode returns the parsed backend mode. Call Validate first.
func (c *Config) Mode() media.Mode {
	m, _ := media.ParseMode(c.BackendMode)
	return m
}

// Format returns the parsed output format. Call Validate first.
func (c *Config) Format() media.Format {
	f, _ := media.ParseFormat(c.OutputFormat)
	return f
}

// PipelineOptions converts the configuration into pipeline options.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	if err := c.Validate(); err != nil {
		return pipeline.Options{}, err
	}
	layout, _ := pipeline.ParseLayout(c.OutputLayout)

	return pipeline.Options{
		SourceDir:         c.SourceDir,
		OutputDir:         c.OutputDir,
		Layout:            layout,
		AllowedExtensions: splitList(strings.Join(c.AllowedExtensions, ",")),
		Derivatives: derivative.Options{
			ThumbnailSize:    c.ThumbnailSize,
			PreviewSize:      c.PreviewSize,
			ThumbnailQuality: c.ThumbnailQuality,
			PreviewQuality:   c.PreviewQuality,
			Format:           c.Format(),
		},
		Precision:     c.Precision,
		Workers:       c.Workers,
		SkipUnchanged: c.SkipUnchanged,
		Retry:         filesystem.DefaultRetryConfig(),
	}, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
