package camera

import (
	"errors"
	"fmt"
)

// Setup errors. Compare with errors.Is; Configure wraps them in *SetupError.
var (
	// ErrDeviceUnavailable is returned when no device matches the requested
	// position and resolution.
	ErrDeviceUnavailable = errors.New("camera: device unavailable")

	// ErrInputRejected is returned when the selected device cannot be
	// opened or attached to the session.
	ErrInputRejected = errors.New("camera: input rejected")

	// ErrOutputRejected is returned when the device cannot deliver the
	// requested pixel format or orientation.
	ErrOutputRejected = errors.New("camera: output rejected")

	// ErrUnknown wraps any other setup failure.
	ErrUnknown = errors.New("camera: unknown setup failure")

	// ErrNotConfigured is returned by Start before a successful Configure.
	ErrNotConfigured = errors.New("camera: not configured")

	// ErrInvalidConfig is returned by Manager for configs that fail Validate.
	ErrInvalidConfig = errors.New("camera: invalid config")

	// ErrClosed is returned for operations on a closed capture session.
	ErrClosed = errors.New("camera: capture closed")
)

// Per-frame conversion errors. These never leave the capture session.
var (
	ErrUnsupportedFormat = errors.New("camera: unsupported pixel format")
	ErrShortBuffer       = errors.New("camera: buffer too short")
	ErrInvalidSize       = errors.New("camera: invalid frame size")
)

// SetupError records which setup step failed.
type SetupError struct {
	Op       string // "validate", "check", "open"
	Position Position
	Err      error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	return fmt.Sprintf("camera setup %s (%s): %v", e.Op, e.Position, e.Err)
}

// Unwrap returns the underlying error.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// classify makes sure every setup error matches one of the setup sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrDeviceUnavailable),
		errors.Is(err, ErrInputRejected),
		errors.Is(err, ErrOutputRejected),
		errors.Is(err, ErrUnknown):
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnknown, err)
}
