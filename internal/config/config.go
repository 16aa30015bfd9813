// Package config loads posecam settings from YAML, the environment and
// command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/display"
	"github.com/teslashibe/go-posecam/pkg/pose"
	"github.com/teslashibe/go-posecam/pkg/web"
)

// Frame sources.
const (
	SourceCamera    = "camera"
	SourceFile      = "file"
	SourceSynthetic = "synthetic"
)

// Source selects where frames come from.
type Source struct {
	Kind string `yaml:"kind" json:"kind"`
	// Path is the video file for SourceFile.
	Path string `yaml:"path" json:"path"`
	// Devices maps camera positions to OpenCV device indices.
	Devices map[camera.Position]int `yaml:"devices" json:"devices"`
	// AutoStart starts capture once the initial Configure succeeds.
	AutoStart bool `yaml:"auto_start" json:"auto_start"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the full application configuration.
type Config struct {
	Camera  camera.Config  `yaml:"camera" json:"camera"`
	Source  Source         `yaml:"source" json:"source"`
	Pose    pose.Config    `yaml:"pose" json:"pose"`
	Web     web.Config     `yaml:"web" json:"web"`
	Display display.Config `yaml:"display" json:"display"`
	Log     LogConfig      `yaml:"log" json:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Camera: camera.DefaultConfig(),
		Source: Source{
			Kind:      SourceCamera,
			Devices:   camera.DefaultDevices(),
			AutoStart: true,
		},
		Pose:    pose.DefaultConfig(),
		Web:     web.DefaultConfig(),
		Display: display.DefaultConfig(),
		Log:     LogConfig{Level: "info"},
	}
}

// ConfigError describes one invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Validate checks every section and joins the problems found. Each one
// is a *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, p := range c.Camera.Validate() {
		add("camera", "%s", p)
	}

	switch c.Source.Kind {
	case SourceCamera:
		if _, ok := c.Source.Devices[c.Camera.Position]; !ok {
			add("source.devices", "no device index for position %q", c.Camera.Position)
		}
	case SourceFile:
		if c.Source.Path == "" {
			add("source.path", "required for file source")
		}
	case SourceSynthetic:
	default:
		add("source.kind", "unknown source %q", c.Source.Kind)
	}

	switch c.Pose.Backend {
	case pose.BackendYOLO:
		if c.Pose.YOLO.ModelPath == "" {
			add("pose.yolo.model_path", "required for yolo backend")
		}
		if c.Pose.YOLO.InputWidth <= 0 || c.Pose.YOLO.InputHeight <= 0 {
			add("pose.yolo", "input size must be positive")
		}
	case pose.BackendRemote:
		if c.Pose.Remote.URL == "" {
			add("pose.remote.url", "required for remote backend")
		}
	case pose.BackendNone:
	default:
		add("pose.backend", "unknown backend %q", c.Pose.Backend)
	}
	if c.Pose.Timeout <= 0 {
		add("pose.timeout", "must be positive")
	}

	if c.Web.Listen == "" {
		add("web.listen", "required")
	}
	if c.Web.Quality < 1 || c.Web.Quality > 100 {
		add("web.quality", "must be 1-100, got %d", c.Web.Quality)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "unknown level %q", c.Log.Level)
	}

	return errors.Join(errs...)
}
