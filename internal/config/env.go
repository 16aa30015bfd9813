package config

import (
	"os"
	"strings"

	"github.com/teslashibe/go-posecam/pkg/pose"
)

// Environment variables read by Load.
const (
	EnvConfig   = "POSECAM_CONFIG"
	EnvListen   = "POSECAM_LISTEN"
	EnvModel    = "POSECAM_MODEL"
	EnvPoseURL  = "POSECAM_POSE_URL"
	EnvLogLevel = "POSECAM_LOG_LEVEL"
	EnvSource   = "POSECAM_SOURCE"
)

// Path returns the config file path from POSECAM_CONFIG.
// Falls back to the provided default if not set.
func Path(defaultPath string) string {
	return envOr(EnvConfig, defaultPath)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	c.Web.Listen = envOr(EnvListen, c.Web.Listen)
	c.Pose.YOLO.ModelPath = envOr(EnvModel, c.Pose.YOLO.ModelPath)
	c.Log.Level = envOr(EnvLogLevel, c.Log.Level)
	c.Source.Kind = envOr(EnvSource, c.Source.Kind)

	// A pose service URL implies the remote backend.
	if url := envOr(EnvPoseURL, ""); url != "" {
		c.Pose.Remote.URL = url
		c.Pose.Backend = pose.BackendRemote
	}
}
