package pose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// Estimator finds body poses in an image.
type Estimator interface {
	// Estimate returns zero or more observations for img.
	Estimate(ctx context.Context, img image.Image) ([]Observation, error)

	// Close releases resources
	Close() error
}

// Sentinel errors for common conditions.
var (
	// ErrEmptyImage is returned for nil or zero-sized input.
	ErrEmptyImage = errors.New("pose: empty image")

	// ErrModelNotFound is returned when the model file is missing.
	ErrModelNotFound = errors.New("pose: model not found")

	// ErrServiceUnavailable is returned when a remote estimator cannot answer.
	ErrServiceUnavailable = errors.New("pose: service unavailable")

	// ErrBadResponse is returned when a service answers with malformed
	// observations.
	ErrBadResponse = errors.New("pose: malformed response")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pose: estimator closed")
)

// BackendError wraps an error with the backend that produced it.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("pose [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Err: err}
}

func emptyImage(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// Backend names accepted by New.
const (
	BackendYOLO   = "yolo"
	BackendRemote = "remote"
	BackendNone   = "none"
)

// Config selects and configures an estimator backend.
type Config struct {
	Backend string        `yaml:"backend" json:"backend"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // per-frame budget
	YOLO    YOLOConfig    `yaml:"yolo" json:"yolo"`
	Remote  RemoteConfig  `yaml:"remote" json:"remote"`
}

// DefaultConfig returns the local YOLO backend with a 500ms frame budget.
func DefaultConfig() Config {
	return Config{
		Backend: BackendYOLO,
		Timeout: 500 * time.Millisecond,
		YOLO:    DefaultYOLOConfig(),
		Remote:  DefaultRemoteConfig(),
	}
}

// New creates the configured backend. BackendNone yields an estimator
// that never finds anyone, so frames pass through undecorated.
func New(cfg Config) (Estimator, error) {
	switch cfg.Backend {
	case BackendYOLO, "":
		y, err := NewYOLOPose(cfg.YOLO)
		if err != nil {
			return nil, err
		}
		return y, nil
	case BackendRemote:
		r, err := NewRemote(cfg.Remote)
		if err != nil {
			return nil, err
		}
		return r, nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("pose: unknown backend %q", cfg.Backend)
	}
}

// Nop never finds anyone. It backs BackendNone.
type Nop struct{}

// Estimate returns no observations.
func (Nop) Estimate(ctx context.Context, img image.Image) ([]Observation, error) {
	if emptyImage(img) {
		return nil, WrapError(BackendNone, ErrEmptyImage)
	}
	return nil, ctx.Err()
}

// Close is a no-op.
func (Nop) Close() error { return nil }
