// Package config - YAML configuration for the detect CLI and server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

const maxFileSize = 1 << 20

// Config is the root configuration.
type Config struct {
	// Bundle locates the model artifacts.
	Bundle models.Bundle `yaml:"bundle"`

	// ClassTable names a built-in class table ("coco") used when the model
	// declares none. Empty leaves unnamed classes as class_<index>.
	ClassTable string `yaml:"class_table"`

	// Precision is the numeric precision of the model outputs.
	Precision model.Precision `yaml:"precision"`

	// Detector tunes the detection pipeline.
	Detector inference.Config `yaml:"detector"`

	// Provider selects the ONNX Runtime execution provider.
	Provider providers.Config `yaml:"provider"`

	// Vision tunes the OpenCV fallback detector.
	Vision inference.FallbackConfig `yaml:"vision"`

	// Filter is the per-class display filter.
	Filter models.FilterConfig `yaml:"filter"`

	// Density tunes scene density metrics.
	Density postprocess.DensityConfig `yaml:"density"`

	// Profiler configures periodic runtime reports.
	Profiler ProfilerConfig `yaml:"profiler"`

	// Server configures the HTTP service.
	Server ServerConfig `yaml:"server"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// ProfilerConfig configures the runtime profiler.
type ProfilerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// Options converts the configuration into profiler options.
func (p ProfilerConfig) Options(logger logrus.FieldLogger) profiler.ProfilingOptions {
	return profiler.ProfilingOptions{ReportInterval: p.ReportInterval, Logger: logger}
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns a configuration that runs the bundled model on the best
// provider for the platform.
func Default() Config {
	return Config{
		Bundle:     models.Bundle{Root: "models", CandidateNames: models.DefaultCandidateNames},
		ClassTable: "coco",
		Precision:  model.PrecisionFP32,
		Detector:   inference.DefaultConfig(),
		Provider:   providers.DefaultConfig(),
		Vision:     inference.DefaultFallbackConfig(),
		Filter:     models.FilterConfig{Threshold: models.DefaultThreshold, Preset: models.PresetCustom},
		Density:    postprocess.DefaultDensityConfig(),
		Profiler:   ProfilerConfig{ReportInterval: time.Minute},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 16 << 20,
			RequestTimeout: 30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Bundle.Root == "" {
		return fmt.Errorf("bundle.root is required")
	}
	if !c.Precision.Valid() {
		return fmt.Errorf("unknown precision %q", c.Precision)
	}
	if _, err := models.BuiltinClassNames(c.ClassTable); err != nil {
		return err
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := c.Vision.Validate(); err != nil {
		return fmt.Errorf("vision: %w", err)
	}
	if c.Filter.Threshold < 0 || c.Filter.Threshold > 1 {
		return fmt.Errorf("filter.threshold %v out of [0, 1]", c.Filter.Threshold)
	}
	if c.Filter.Preset != "" {
		if _, err := models.ParsePreset(string(c.Filter.Preset)); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Load reads a YAML file over the defaults and validates the result.
//
// Fields omitted from the file keep their default values, so partial
// configs are safe. Unknown fields are rejected.
//
// Arguments:
//   - path: The .yaml or .yml file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file is unreadable, malformed or invalid.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return cfg, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Logger builds a logrus logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}
