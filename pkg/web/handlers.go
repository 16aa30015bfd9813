package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/teslashibe/go-posecam/pkg/camera"
	"github.com/teslashibe/go-posecam/pkg/hub"
	"github.com/teslashibe/go-posecam/pkg/overlay"
)

// opTimeout bounds capture control calls made from handlers.
const opTimeout = 5 * time.Second

// Status is the payload of GET /api/status and /ws/status.
type Status struct {
	State          string           `json:"state"`
	Camera         *camera.Config   `json:"camera,omitempty"`
	Frames         camera.Counters  `json:"frames"`
	Overlay        overlay.Counters `json:"overlay"`
	PreviewClients int              `json:"preview_clients"`
	SetupError     string           `json:"setup_error,omitempty"`
	Uptime         string           `json:"uptime"`
}

func (s *Server) status() Status {
	st := Status{
		State:          "unavailable",
		PreviewClients: s.previewHub.ClientCount(),
		Uptime:         time.Since(s.started).Round(time.Second).String(),
	}
	if s.capture != nil {
		st.State = s.capture.State().String()
		st.Frames = s.capture.Counters()
	}
	if s.manager != nil {
		cfg := s.manager.GetConfig()
		st.Camera = &cfg
	}
	if s.counters != nil {
		st.Overlay = s.counters()
	}
	if err := s.setupError(); err != nil {
		st.SetupError = err.Error()
	}
	return st
}

// handleError renders errors as {"error": "..."} with a matching status.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, camera.ErrInvalidConfig):
		code = fiber.StatusBadRequest
	case errors.Is(err, camera.ErrNotConfigured):
		code = fiber.StatusConflict
	case errors.Is(err, camera.ErrDeviceUnavailable),
		errors.Is(err, camera.ErrInputRejected),
		errors.Is(err, camera.ErrOutputRejected):
		code = fiber.StatusUnprocessableEntity
	case errors.Is(err, camera.ErrClosed):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) requireCapture() error {
	if s.capture == nil || s.manager == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "capture not available")
	}
	return nil
}

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleGetCamera returns the active camera configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if err := s.requireCapture(); err != nil {
		return err
	}
	return c.JSON(s.manager.GetConfigJSON())
}

// handleUpdateCamera applies a partial update, optionally from a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if err := s.requireCapture(); err != nil {
		return err
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := s.manager.UpdateConfig(params); err != nil {
		return err
	}

	s.logger.Info("camera config updated", zap.Any("params", params))
	return c.JSON(s.manager.GetConfigJSON())
}

// handleListPresets returns the named presets
func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleCapabilities lists accepted config values
func (s *Server) handleCapabilities(c *fiber.Ctx) error {
	return c.JSON(camera.Capabilities())
}

// handleStart starts frame delivery
func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.requireCapture(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), opTimeout)
	defer cancel()
	if err := s.capture.Start(ctx); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": s.capture.State().String()})
}

// handleStop stops frame delivery
func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.requireCapture(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), opTimeout)
	defer cancel()
	if err := s.capture.Stop(ctx); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"state": s.capture.State().String()})
}

// handleSnapshot returns the last displayed frame
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	data, at, ok := s.Snapshot()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no frame yet")
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderLastModified, at.UTC().Format(time.RFC1123))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

// handlePreviewWS streams JPEG frames
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	s.serveHub(s.previewHub, c)
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if err := c.WriteJSON(s.status()); err != nil {
		return
	}
	s.serveHub(s.statusHub, c)
}

func (s *Server) serveHub(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		return
	}
	client.Run()
}
