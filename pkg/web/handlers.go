package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-moodcam/pkg/camera"
)

// Messages shown by the dashboard.
const (
	msgModelNotReady = "expression model not loaded"
	msgAccessDenied  = "camera access denied"
)

// handleStatus returns the detection status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusView())
}

// handleEmotion returns the current emotion, or null
func (s *Server) handleEmotion(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return c.Type("json").SendString("null")
	}
	return c.JSON(s.current)
}

// handleHistory returns the latest history snapshot, newest first
func (s *Server) handleHistory(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.history)
}

// handleStats returns the aggregate statistics
func (s *Server) handleStats(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(s.stats)
}

// handleLabels returns the vocabulary with colors and glyphs
func (s *Server) handleLabels(c *fiber.Ctx) error {
	return c.JSON(labelViews(s.palette))
}

// handleCameraStart acquires the camera
func (s *Server) handleCameraStart(c *fiber.Ctx) error {
	if s.control == nil || !s.control.ModelReady() {
		return fiber.NewError(fiber.StatusServiceUnavailable, msgModelNotReady)
	}

	if err := s.control.StartCamera(c.UserContext()); err != nil {
		if errors.Is(err, camera.ErrDeviceUnavailable) {
			s.logger.Warn("camera start refused", "error", err)
			return fiber.NewError(fiber.StatusConflict, msgAccessDenied)
		}
		return err
	}

	return c.JSON(fiber.Map{
		"status":     "started",
		"session_id": s.control.Session(),
	})
}

// handleCameraStop releases the camera
func (s *Server) handleCameraStop(c *fiber.Ctx) error {
	if s.control == nil || !s.control.ModelReady() {
		return fiber.NewError(fiber.StatusServiceUnavailable, msgModelNotReady)
	}
	if err := s.control.StopCamera(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

// handleGetCameraConfig returns the camera configuration used on next start
func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.cameras.GetConfig())
}

// handleUpdateCameraConfig applies a partial camera configuration
func (s *Server) handleUpdateCameraConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := s.cameras.UpdateConfig(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.cameras.GetConfig())
}

// handleCameraPresets lists the resolution presets
func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets": camera.PresetNames(),
	})
}
