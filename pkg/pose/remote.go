package pose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/teslashibe/go-posecam/internal/httpc"
)

// RemoteConfig configures the HTTP estimator.
type RemoteConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Quality int           `yaml:"quality" json:"quality"` // JPEG quality 1-100
}

// DefaultRemoteConfig returns defaults for a pose service on localhost.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:     "http://127.0.0.1:8090/v1/pose",
		Timeout: 2 * time.Second,
		Quality: 80,
	}
}

// remoteKeypoint is the wire form of one joint.
type remoteKeypoint struct {
	Joint      string  `json:"joint"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

type remoteObservation struct {
	Confidence float64          `json:"confidence"`
	Keypoints  []remoteKeypoint `json:"keypoints"`
}

type remoteResponse struct {
	Observations []remoteObservation `json:"observations"`
}

type remoteError struct {
	Error string `json:"error"`
}

// Remote posts each frame as JPEG to a pose service and decodes the
// observations it returns. Coordinates on the wire are normalized with a
// top-left origin.
type Remote struct {
	client *resty.Client
	config RemoteConfig
	closed atomic.Bool
}

// NewRemote creates a remote estimator.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, WrapError("remote", fmt.Errorf("url is required"))
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}
	return &Remote{
		client: httpc.NewRest("", cfg.Timeout),
		config: cfg,
	}, nil
}

// Estimate sends img to the service.
func (r *Remote) Estimate(ctx context.Context, img image.Image) ([]Observation, error) {
	if emptyImage(img) {
		return nil, WrapError("remote", ErrEmptyImage)
	}
	if r.closed.Load() {
		return nil, WrapError("remote", ErrClosed)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.config.Quality}); err != nil {
		return nil, WrapError("remote", fmt.Errorf("encode frame: %w", err))
	}

	var result remoteResponse
	var apiErr remoteError
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetBody(buf.Bytes()).
		SetResult(&result).
		SetError(&apiErr).
		Post(r.config.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapError("remote", fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, WrapError("remote", fmt.Errorf("%w: status %d: %s", ErrServiceUnavailable, resp.StatusCode(), msg))
	}

	out := make([]Observation, 0, len(result.Observations))
	for _, ro := range result.Observations {
		obs := Observation{
			Confidence: ro.Confidence,
			Keypoints:  make(map[Joint]Keypoint, len(ro.Keypoints)),
		}
		for i, rk := range ro.Keypoints {
			j := Joint(rk.Joint)
			if j == "" {
				return nil, WrapError("remote", fmt.Errorf("%w: keypoint %d has no joint", ErrBadResponse, i))
			}
			if _, dup := obs.Keypoints[j]; dup {
				return nil, WrapError("remote", fmt.Errorf("%w: joint %q repeated", ErrBadResponse, j))
			}
			obs.Keypoints[j] = Keypoint{
				Joint:      j,
				Location:   Point{X: rk.X, Y: rk.Y},
				Confidence: rk.Confidence,
			}
		}
		out = append(out, obs)
	}
	return out, nil
}

// Close marks the estimator closed. Idle connections are released.
func (r *Remote) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.client.GetClient().CloseIdleConnections()
	return nil
}
