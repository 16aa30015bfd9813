// Package web serves the live preview, the camera control API and the
// metrics endpoint.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/teslashibe/go-posecam/internal/log"
	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/hub"
	"github.com/teslashibe/go-posecam/pkg/overlay"
)

// Config holds web server settings.
type Config struct {
	Listen         string        `yaml:"listen" json:"listen"`
	PreviewWidth   uint          `yaml:"preview_width" json:"preview_width"` // 0 keeps frame size
	Quality        int           `yaml:"quality" json:"quality"`
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`
	StaticDir      string        `yaml:"static_dir" json:"static_dir"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Listen:         ":8080",
		PreviewWidth:   480,
		Quality:        75,
		StatusInterval: time.Second,
	}
}

// Capture is the part of the capture session the API drives.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() camera.State
	Counters() camera.Counters
}

// Server is the preview and control server. It implements
// overlay.Display.
type Server struct {
	app    *fiber.App
	config Config
	logger *zap.Logger

	capture  Capture
	manager  *camera.Manager
	counters func() overlay.Counters
	metrics  http.Handler

	setupMu  sync.RWMutex
	setupErr error

	previewHub *hub.Hub
	statusHub  *hub.Hub

	frameMu sync.RWMutex
	frame   *preview

	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCapture attaches the capture session and its config manager.
func WithCapture(c Capture, m *camera.Manager) Option {
	return func(s *Server) {
		s.capture = c
		s.manager = m
	}
}

// WithOverlayCounters reports presenter counters in /api/status.
func WithOverlayCounters(f func() overlay.Counters) Option {
	return func(s *Server) { s.counters = f }
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

var _ overlay.Display = (*Server)(nil)

// NewServer creates the server and its routes.
func NewServer(cfg Config, opts ...Option) *Server {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultConfig().Quality
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}

	s := &Server{
		config:  cfg,
		logger:  log.Named("web"),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.previewHub = hub.New("preview", hub.WithLogger(s.logger), hub.WithReplay())
	s.statusHub = hub.New("status", hub.WithLogger(s.logger))

	app := fiber.New(fiber.Config{
		AppName:               "posecam",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleListPresets)
	api.Get("/camera/capabilities", s.handleCapabilities)
	api.Post("/capture/start", s.handleStart)
	api.Post("/capture/stop", s.handleStop)
	api.Get("/snapshot", s.handleSnapshot)

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetSetupError records a failed initial camera setup so the status
// endpoint can report it. Pass nil to clear.
func (s *Server) SetSetupError(err error) {
	s.setupMu.Lock()
	s.setupErr = err
	s.setupMu.Unlock()
}

func (s *Server) setupError() error {
	s.setupMu.RLock()
	defer s.setupMu.RUnlock()
	return s.setupErr
}

// Run starts the hubs and the status ticker, then serves on
// config.Listen until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.StartHubs(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", zap.String("addr", s.config.Listen))
		errCh <- s.app.Listen(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}

// StartHubs runs the websocket hubs and the status broadcaster until ctx
// is done. Run calls it; tests that drive App directly call it themselves.
func (s *Server) StartHubs(ctx context.Context) {
	go s.previewHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.broadcastStatus(ctx)
}

func (s *Server) broadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
				s.logger.Warn("status broadcast failed", zap.Error(err))
			}
		}
	}
}

// PreviewHub returns the preview frame hub.
func (s *Server) PreviewHub() *hub.Hub {
	return s.previewHub
}

// StatusHub returns the status hub.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}
