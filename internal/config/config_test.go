package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/pose"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posecam.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
camera:
  position: back
  resolution: cif352x288
  pixel_format: bgr24
  orientation: landscape-right
  framerate: 15
  quality: 70
source:
  kind: synthetic
pose:
  backend: remote
  timeout: 250ms
  remote:
    url: http://pose.local/v1/pose
web:
  listen: ":9090"
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Camera.Resolution != camera.ResolutionCIF || cfg.Camera.PixelFormat != camera.PixelFormatBGR24 {
		t.Errorf("camera section not applied: %+v", cfg.Camera)
	}
	if cfg.Pose.Timeout != 250*time.Millisecond {
		t.Errorf("pose timeout: got %v", cfg.Pose.Timeout)
	}
	if cfg.Pose.Backend != pose.BackendRemote || cfg.Pose.Remote.URL != "http://pose.local/v1/pose" {
		t.Errorf("pose section not applied: %+v", cfg.Pose)
	}
	// Unset fields keep their defaults.
	if cfg.Web.Quality != 75 {
		t.Errorf("web quality default lost: %d", cfg.Web.Quality)
	}
	if cfg.Pose.YOLO.InputWidth != 640 {
		t.Errorf("yolo defaults lost: %+v", cfg.Pose.YOLO)
	}
}

func TestLoad_SampleMatchesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "posecam.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("configs/posecam.yaml drifted from Default():\n got %+v\nwant %+v", cfg, Default())
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "camera:\n  zoom: 2\n")); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := Load(writeFile(t, "")); err != nil {
		t.Errorf("empty file should load defaults: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvListen, "127.0.0.1:7000")
	t.Setenv(EnvModel, "/models/pose.onnx")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvPoseURL, "http://10.0.0.2:8090/pose")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Listen != "127.0.0.1:7000" {
		t.Errorf("listen: got %s", cfg.Web.Listen)
	}
	if cfg.Pose.YOLO.ModelPath != "/models/pose.onnx" {
		t.Errorf("model: got %s", cfg.Pose.YOLO.ModelPath)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level: got %s", cfg.Log.Level)
	}
	if cfg.Pose.Backend != pose.BackendRemote || cfg.Pose.Remote.URL != "http://10.0.0.2:8090/pose" {
		t.Errorf("pose url should select remote backend: %+v", cfg.Pose)
	}
}

func TestPath(t *testing.T) {
	if got := Path("posecam.yaml"); got != "posecam.yaml" {
		t.Errorf("default: got %s", got)
	}
	t.Setenv(EnvConfig, "/etc/posecam.yaml")
	if got := Path("posecam.yaml"); got != "/etc/posecam.yaml" {
		t.Errorf("env: got %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad camera", func(c *Config) { c.Camera.Orientation = "diagonal" }, "camera"},
		{"missing device", func(c *Config) { c.Camera.Position = camera.PositionFront; delete(c.Source.Devices, camera.PositionFront) }, "source.devices"},
		{"file without path", func(c *Config) { c.Source.Kind = SourceFile }, "source.path"},
		{"unknown source", func(c *Config) { c.Source.Kind = "rtsp" }, "source.kind"},
		{"unknown backend", func(c *Config) { c.Pose.Backend = "tflite" }, "pose.backend"},
		{"remote without url", func(c *Config) { c.Pose.Backend = pose.BackendRemote; c.Pose.Remote.URL = "" }, "pose.remote.url"},
		{"zero timeout", func(c *Config) { c.Pose.Timeout = 0 }, "pose.timeout"},
		{"no listen", func(c *Config) { c.Web.Listen = "" }, "web.listen"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field: got %s, want %s", ce.Field, tt.field)
			}
		})
	}
}
