package overlay

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teslashibe/go-posecam/internal/log"
	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/pose"
)

// DefaultTimeout bounds one estimation.
const DefaultTimeout = 500 * time.Millisecond

// Stats receives presenter counters. pkg/metrics implements it.
type Stats interface {
	FrameDisplayed()
	EstimateFailed(reason string)
	EstimateDuration(d time.Duration)
	Detections(n int)
}

// Estimate failure reasons reported to Stats.
const (
	FailTimeout = "timeout"
	FailError   = "error"
)

// Option configures a Presenter.
type Option func(*Presenter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Presenter) { p.logger = l }
}

// WithStats sets the counters sink.
func WithStats(s Stats) Option {
	return func(p *Presenter) { p.stats = s }
}

// WithTimeout sets the per-frame estimation budget.
func WithTimeout(d time.Duration) Option {
	return func(p *Presenter) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithStyle sets the marker style.
func WithStyle(s MarkerStyle) Option {
	return func(p *Presenter) { p.marker = NewMarker(s) }
}

// Presenter turns camera frames into annotated images. It implements
// camera.Listener; the capture session calls OnFrame serially.
type Presenter struct {
	estimator pose.Estimator
	display   Display
	marker    *Marker
	timeout   time.Duration
	logger    *zap.Logger
	stats     Stats

	mu      sync.RWMutex
	current camera.Frame
	hasCur  bool

	displayed  atomic.Uint64
	failed     atomic.Uint64
	detections atomic.Int64
}

// NewPresenter creates a presenter that estimates with est and shows
// results on d.
func NewPresenter(est pose.Estimator, d Display, opts ...Option) *Presenter {
	p := &Presenter{
		estimator: est,
		display:   d,
		marker:    defaultMarker,
		timeout:   DefaultTimeout,
		logger:    log.Named("overlay"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ camera.Listener = (*Presenter)(nil)

// OnFrame implements camera.Listener.
func (p *Presenter) OnFrame(f camera.Frame) {
	if f.Image == nil {
		return
	}

	p.mu.Lock()
	p.current = f
	p.hasCur = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	obs, err := p.estimator.Estimate(ctx, f.Image)
	elapsed := time.Since(start)
	if p.stats != nil {
		p.stats.EstimateDuration(elapsed)
	}

	if err != nil {
		reason := FailError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = FailTimeout
		}
		p.failed.Add(1)
		if p.stats != nil {
			p.stats.EstimateFailed(reason)
		}
		p.logger.Warn("pose estimation failed",
			zap.Uint64("seq", f.Seq),
			zap.String("reason", reason),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}

	n := 0
	for _, o := range obs {
		n += len(o.Visible())
	}
	p.detections.Store(int64(len(obs)))
	if p.stats != nil {
		p.stats.Detections(len(obs))
	}

	if n == 0 {
		p.show(f.Image)
		return
	}
	p.show(p.marker.Render(f.Image, obs))
}

func (p *Presenter) show(img image.Image) {
	if p.display != nil {
		p.display.Show(img)
	}
	p.displayed.Add(1)
	if p.stats != nil {
		p.stats.FrameDisplayed()
	}
}

// CurrentFrame returns the most recent frame handed to OnFrame, whether
// or not it was displayed.
func (p *Presenter) CurrentFrame() (camera.Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.hasCur
}

// Counters is a snapshot of presenter activity.
type Counters struct {
	Displayed      uint64 `json:"displayed"`
	EstimateFailed uint64 `json:"estimate_failed"`
	LastDetections int64  `json:"last_detections"`
}

// Counters returns current counter values.
func (p *Presenter) Counters() Counters {
	return Counters{
		Displayed:      p.displayed.Load(),
		EstimateFailed: p.failed.Load(),
		LastDetections: p.detections.Load(),
	}
}
