package main

import (
	"fmt"

	"github.com/teslashibe/go-posecam/internal/config"
	"github.com/teslashibe/go-posecam/pkg/camera"
)

// applyPreset replaces the camera section with a named preset.
func applyPreset(cfg *config.Config, name string) error {
	p := camera.GetPreset(name)
	if p == nil {
		return fmt.Errorf("unknown preset %q (have %v)", name, camera.PresetNames())
	}
	cfg.Camera = *p
	return nil
}
