// Package camera owns the video source: capture configuration, device
// providers, raw buffer conversion and the capture session that delivers
// frames to a listener.
package camera

import "fmt"

// Position selects which physical camera to use.
type Position string

const (
	PositionBack  Position = "back"
	PositionFront Position = "front"
)

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	return p == PositionBack || p == PositionFront
}

// PixelFormat is the layout of raw buffers delivered by a device.
type PixelFormat string

const (
	// PixelFormatNV12 is 8-bit Y'CbCr 4:2:0 bi-planar, full range.
	PixelFormatNV12 PixelFormat = "nv12"
	// PixelFormatBGR24 is packed 8-bit B, G, R.
	PixelFormatBGR24 PixelFormat = "bgr24"
)

// Valid reports whether f is a supported pixel format.
func (f PixelFormat) Valid() bool {
	return f == PixelFormatNV12 || f == PixelFormatBGR24
}

// Orientation is applied to every converted frame.
type Orientation string

const (
	// OrientationLandscapeRight is the sensor's native orientation.
	OrientationLandscapeRight Orientation = "landscape-right"
	// OrientationPortrait rotates 90 degrees clockwise.
	OrientationPortrait Orientation = "portrait"
	// OrientationPortraitUpsideDown rotates 90 degrees counter-clockwise.
	OrientationPortraitUpsideDown Orientation = "portrait-upside-down"
	// OrientationLandscapeLeft rotates 180 degrees.
	OrientationLandscapeLeft Orientation = "landscape-left"
)

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool {
	switch o {
	case OrientationLandscapeRight, OrientationPortrait,
		OrientationPortraitUpsideDown, OrientationLandscapeLeft:
		return true
	}
	return false
}

// Config holds the capture configuration.
// It is set once at startup and changed only through Capture.Configure.
type Config struct {
	Position    Position    `json:"position" yaml:"position"`
	Resolution  string      `json:"resolution" yaml:"resolution"` // Resolution preset name
	PixelFormat PixelFormat `json:"pixel_format" yaml:"pixel_format"`
	Orientation Orientation `json:"orientation" yaml:"orientation"`
	Framerate   int         `json:"framerate" yaml:"framerate"` // Target FPS
	Quality     int         `json:"quality" yaml:"quality"`     // Preview JPEG quality 1-100, read by the web preview
}

// DefaultConfig returns the back camera at VGA in portrait, delivering
// full-range NV12 buffers.
func DefaultConfig() Config {
	return Config{
		Position:    PositionBack,
		Resolution:  ResolutionVGA,
		PixelFormat: PixelFormatNV12,
		Orientation: OrientationPortrait,
		Framerate:   30,
		Quality:     80,
	}
}

// Size returns the pixel dimensions of the configured resolution preset.
func (c Config) Size() (Resolution, bool) {
	return LookupResolution(c.Resolution)
}

// String implements fmt.Stringer.
func (c Config) String() string {
	return fmt.Sprintf("%s/%s/%s/%s@%dfps", c.Position, c.Resolution, c.PixelFormat, c.Orientation, c.Framerate)
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if !c.Position.Valid() {
		errors = append(errors, "position must be back or front")
	}
	if _, ok := c.Size(); !ok {
		errors = append(errors, fmt.Sprintf("resolution must be one of %v", ResolutionNames()))
	}
	if !c.PixelFormat.Valid() {
		errors = append(errors, "pixel_format must be nv12 or bgr24")
	}
	if !c.Orientation.Valid() {
		errors = append(errors, "orientation must be landscape-right, portrait, portrait-upside-down, or landscape-left")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}

// SameCapture reports whether c and o open the device identically. Quality
// only affects preview encoding, so changing it needs no reconfiguration.
func (c Config) SameCapture(o Config) bool {
	c.Quality = o.Quality
	return c == o
}

// Capabilities returns the values accepted by Validate.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"positions":     []Position{PositionBack, PositionFront},
		"resolutions":   ResolutionNames(),
		"pixel_formats": []PixelFormat{PixelFormatNV12, PixelFormatBGR24},
		"orientations": []Orientation{
			OrientationLandscapeRight, OrientationPortrait,
			OrientationPortraitUpsideDown, OrientationLandscapeLeft,
		},
		"max_framerate": 120,
	}
}
