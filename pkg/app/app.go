// Package app wires capture, pose estimation, overlay and the display
// surfaces into one process.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teslashibe/go-posecam/internal/config"
	"github.com/teslashibe/go-posecam/internal/log"
	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/display"
	"github.com/teslashibe/go-posecam/pkg/metrics"
	"github.com/teslashibe/go-posecam/pkg/overlay"
	"github.com/teslashibe/go-posecam/pkg/pose"
	"github.com/teslashibe/go-posecam/pkg/web"
)

// configureTimeout bounds camera reconfiguration requested over the API.
const configureTimeout = 10 * time.Second

// Options tune process behavior outside the config file.
type Options struct {
	// ExitOnSetupError makes Init fail when the initial camera setup
	// fails. Otherwise the API keeps serving without capture.
	ExitOnSetupError bool

	// Provider overrides the source selected in the config.
	Provider camera.Provider

	// Estimator overrides the pose backend selected in the config.
	Estimator pose.Estimator
}

// App is the posecam process.
type App struct {
	config config.Config
	opts   Options
	logger *zap.Logger

	metrics   *metrics.Metrics
	capture   *camera.Capture
	manager   *camera.Manager
	estimator pose.Estimator
	presenter *overlay.Presenter
	displays  *overlay.MultiDisplay
	web       *web.Server
	window    *display.Window

	setupErr error
}

// New validates cfg and creates an App. Call Init before Run.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		opts:   opts,
		logger: log.Named("app"),
	}, nil
}

// Init builds every component and performs the initial camera setup.
func (a *App) Init(ctx context.Context) error {
	a.metrics = metrics.New()

	est := a.opts.Estimator
	if est == nil {
		var err error
		est, err = pose.New(a.config.Pose)
		if err != nil {
			return fmt.Errorf("pose init: %w", err)
		}
	}
	a.estimator = est

	provider := a.opts.Provider
	if provider == nil {
		provider = a.provider()
	}
	a.capture = camera.New(provider,
		camera.WithLogger(log.Named("camera")),
		camera.WithStats(a.metrics))
	a.manager = camera.NewManager(a.config.Camera)

	a.web = web.NewServer(a.config.Web,
		web.WithLogger(log.Named("web")),
		web.WithCapture(a.capture, a.manager),
		web.WithMetrics(a.metrics.Handler()),
		web.WithOverlayCounters(func() overlay.Counters { return a.presenter.Counters() }),
	)

	a.displays = overlay.NewMultiDisplay(a.web)
	if a.config.Display.Enabled {
		a.window = display.NewWindow(a.config.Display.Title)
		a.displays.Add(a.window)
	}

	a.presenter = overlay.NewPresenter(a.estimator, a.displays,
		overlay.WithLogger(log.Named("overlay")),
		overlay.WithStats(a.metrics),
		overlay.WithTimeout(a.config.Pose.Timeout))
	a.capture.SetListener(a.presenter)

	a.manager.OnConfigChange = func(cfg camera.Config) error {
		if a.capture.State() != camera.StateIdle && a.capture.Config().SameCapture(cfg) {
			return nil
		}
		cctx, cancel := context.WithTimeout(context.Background(), configureTimeout)
		defer cancel()
		if err := a.capture.Configure(cctx, cfg); err != nil {
			return err
		}
		a.web.SetSetupError(nil)
		a.logger.Info("camera reconfigured", zap.Stringer("config", cfg))
		return nil
	}

	if err := a.setupCamera(ctx); err != nil {
		a.setupErr = err
		a.web.SetSetupError(err)
		a.logger.Error("camera setup failed", zap.Error(err))
		if a.opts.ExitOnSetupError {
			return err
		}
	}
	return nil
}

// setupCamera applies the initial config and, if asked, starts capture.
func (a *App) setupCamera(ctx context.Context) error {
	cfg := a.config.Camera
	if err := a.capture.Configure(ctx, cfg); err != nil {
		return err
	}
	a.logger.Info("camera configured", zap.Stringer("config", cfg))

	if !a.config.Source.AutoStart {
		return nil
	}
	if err := a.capture.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("capture started")
	return nil
}

func (a *App) provider() camera.Provider {
	switch a.config.Source.Kind {
	case config.SourceFile:
		return &camera.FileProvider{Path: a.config.Source.Path}
	case config.SourceSynthetic:
		return &camera.SyntheticProvider{}
	default:
		return &camera.GocvProvider{Devices: a.config.Source.Devices}
	}
}

// SetupError returns the initial camera setup failure, if any.
func (a *App) SetupError() error {
	return a.setupErr
}

// Presenter returns the overlay presenter.
func (a *App) Presenter() *overlay.Presenter {
	return a.presenter
}

// Capture returns the capture session.
func (a *App) Capture() *camera.Capture {
	return a.capture
}

// Web returns the web server.
func (a *App) Web() *web.Server {
	return a.web
}

// Run serves until ctx is cancelled or the preview window is closed.
// When a window is configured Run must be called from the main goroutine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.metrics.SampleProcess(ctx, time.Second, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- a.web.Run(ctx) }()

	if a.window != nil {
		if err := a.window.Run(ctx); err != nil {
			return err
		}
		cancel()
		return <-errCh
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return <-errCh
	}
}

// Shutdown stops capture and releases the estimator.
func (a *App) Shutdown() {
	if a.capture != nil {
		if err := a.capture.Close(); err != nil {
			a.logger.Warn("capture close failed", zap.Error(err))
		}
	}
	if a.estimator != nil {
		if err := a.estimator.Close(); err != nil {
			a.logger.Warn("estimator close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
