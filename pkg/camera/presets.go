package camera

// Resolution preset names
const (
	ResolutionCIF   = "cif352x288"
	ResolutionVGA   = "vga640x480"
	Resolution720p  = "hd1280x720"
	Resolution1080p = "hd1920x1080"
	Resolution4K    = "hd4K3840x2160"
)

// Resolution is a fixed output size in sensor-native (landscape) pixels.
type Resolution struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var resolutions = []Resolution{
	{ResolutionCIF, 352, 288},
	{ResolutionVGA, 640, 480},
	{Resolution720p, 1280, 720},
	{Resolution1080p, 1920, 1080},
	{Resolution4K, 3840, 2160},
}

// LookupResolution returns the resolution preset with the given name.
func LookupResolution(name string) (Resolution, bool) {
	for _, r := range resolutions {
		if r.Name == name {
			return r, true
		}
	}
	return Resolution{}, false
}

// ResolutionNames returns the preset names from smallest to largest.
func ResolutionNames() []string {
	names := make([]string, len(resolutions))
	for i, r := range resolutions {
		names[i] = r.Name
	}
	return names
}

// Named configuration presets
const (
	PresetDefault   = "default"
	PresetFront     = "front"
	PresetLandscape = "landscape"
	PresetLow       = "low"
	Preset720p      = "720p"
	Preset1080p     = "1080p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:   DefaultConfig(),
		PresetFront:     FrontConfig(),
		PresetLandscape: LandscapeConfig(),
		PresetLow:       LowConfig(),
		Preset720p:      HD720Config(),
		Preset1080p:     HD1080Config(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetFront,
		PresetLandscape,
		PresetLow,
		Preset720p,
		Preset1080p,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// FrontConfig returns the default configuration on the front camera.
func FrontConfig() Config {
	cfg := DefaultConfig()
	cfg.Position = PositionFront
	return cfg
}

// LandscapeConfig keeps the sensor's native orientation.
func LandscapeConfig() Config {
	cfg := DefaultConfig()
	cfg.Orientation = OrientationLandscapeRight
	return cfg
}

// LowConfig returns CIF at 15 FPS for slow estimators.
func LowConfig() Config {
	cfg := DefaultConfig()
	cfg.Resolution = ResolutionCIF
	cfg.Framerate = 15
	return cfg
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Resolution = Resolution720p
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Pose estimation downsamples anyway, so this mostly costs conversion time.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Resolution = Resolution1080p
	cfg.Framerate = 15
	return cfg
}
