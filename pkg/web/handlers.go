package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/analysis"
	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/detection"
	"github.com/lilin454/setcam-bot/pkg/hub"
)

// ErrorCode returns the dashboard error code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return camera.CodePermissionDenied
	case errors.Is(err, camera.ErrDeviceNotFound):
		return camera.CodeDeviceNotFound
	case errors.Is(err, camera.ErrDeviceBusy):
		return camera.CodeDeviceBusy
	case errors.Is(err, camera.ErrUnsupported):
		return camera.CodeUnsupported
	case errors.Is(err, camera.ErrFrameUnavailable):
		return "frame_unavailable"
	case errors.Is(err, camera.ErrNotActive):
		return "not_active"
	case errors.Is(err, analysis.ErrBusy):
		return "analysis_busy"
	}
	return "internal"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, camera.ErrDeviceNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, camera.ErrDeviceBusy),
		errors.Is(err, camera.ErrNotActive),
		errors.Is(err, analysis.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, camera.ErrUnsupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, camera.ErrFrameUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// Describe returns the operator-facing message for an analysis error.
// Camera errors keep their camera wording.
func Describe(err error) string {
	switch ErrorCode(err) {
	case "internal":
		return "Analysis failed: " + err.Error()
	case "analysis_busy":
		return "An analysis is already running"
	}
	return camera.Describe(err)
}

// fail writes err as a JSON error. Camera operations describe errors with
// camera.Describe, everything else with Describe.
func (s *Server) fail(c *fiber.Ctx, err error, describe func(error) string) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error":  describe(err),
		"code":   ErrorCode(err),
		"detail": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.ctrl.Status()
	return c.JSON(fiber.Map{
		"status":        "ok",
		"version":       s.opts.Version,
		"uptime_s":      int64(time.Since(s.started).Seconds()),
		"camera_active": st.CameraActive,
		"producers":     st.Producers,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleCameraStart(c *fiber.Ctx) error {
	if err := s.ctrl.StartCamera(c.UserContext()); err != nil {
		return s.fail(c, err, camera.Describe)
	}
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleCameraStop(c *fiber.Ctx) error {
	if err := s.ctrl.StopCamera(); err != nil {
		return s.fail(c, err, camera.Describe)
	}
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleCameraSwitch(c *fiber.Ctx) error {
	if err := s.ctrl.SwitchCamera(c.UserContext()); err != nil {
		return s.fail(c, err, camera.Describe)
	}
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	res, err := s.ctrl.AnalyzeNow(c.UserContext())
	if err != nil {
		return s.fail(c, err, Describe)
	}
	return c.JSON(res)
}

func (s *Server) handleLatestResult(c *fiber.Ctx) error {
	res := s.ctrl.LatestResult()
	if res == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no result yet"})
	}
	return c.JSON(res)
}

// SettingsRequest is the body of PUT /api/settings. Omitted fields are
// left unchanged.
type SettingsRequest struct {
	IntervalMS  *int    `json:"interval_ms"`
	Sensitivity *string `json:"sensitivity"`
}

func (s *Server) handleSettings(c *fiber.Ctx) error {
	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON: "+err.Error())
	}

	// Validate everything before applying anything.
	var sens detection.Sensitivity
	if req.Sensitivity != nil {
		var err error
		if sens, err = detection.ParseSensitivity(*req.Sensitivity); err != nil {
			return badRequest(c, err.Error())
		}
	}
	if req.IntervalMS != nil && *req.IntervalMS < 0 {
		return badRequest(c, "interval_ms must be >= 0")
	}

	if req.Sensitivity != nil {
		s.ctrl.SetSensitivity(sens)
	}
	if req.IntervalMS != nil {
		if err := s.ctrl.SetInterval(time.Duration(*req.IntervalMS) * time.Millisecond); err != nil {
			return badRequest(c, err.Error())
		}
	}
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera config not available"})
	}
	return c.JSON(s.opts.Camera.GetConfigJSON())
}

func (s *Server) handlePutCameraConfig(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera config not available"})
	}
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return badRequest(c, "invalid JSON: "+err.Error())
	}
	if err := s.opts.Camera.UpdateConfig(params); err != nil {
		return badRequest(c, err.Error())
	}
	log.Info("camera config updated", "keys", len(params))
	return c.JSON(s.opts.Camera.GetConfigJSON())
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets":      camera.PresetNames(),
		"capabilities": camera.Capabilities(),
	})
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	n := c.QueryInt("limit", 100)
	return c.JSON(log.Recent(n))
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	st := s.ctrl.Status()
	stats := s.ctrl.Stats()
	clients := s.ClientCounts()

	var b strings.Builder
	gauge := func(name, help string, v interface{}) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n\n", name, help, name, name, v)
	}
	counter := func(name, help string, v interface{}) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %v\n\n", name, help, name, name, v)
	}

	gauge("setcam_camera_active", "Whether the camera is streaming", boolGauge(st.CameraActive))
	gauge("setcam_producers", "Connected frame producers", st.Producers)
	gauge("setcam_loop_interval_ms", "Analysis interval in milliseconds", st.IntervalMS)
	counter("setcam_passes_total", "Completed analysis passes", stats.Passes)
	counter("setcam_failures_total", "Failed analysis passes", stats.Failures)
	counter("setcam_skipped_ticks_total", "Ticks skipped while a pass was running", stats.SkippedTicks)
	counter("setcam_sets_found_total", "Sets found across all passes", stats.SetsFound)
	gauge("setcam_last_process_ms", "Duration of the last pass in milliseconds", stats.LastProcessMS)
	gauge("setcam_dashboard_clients", "Connected dashboard websocket clients",
		clients["results"]+clients["status"]+clients["logs"])

	var evicted, discarded int64
	for _, h := range []*hub.Hub{s.results, s.status, s.logs} {
		st := h.Stats()
		evicted += st.SlowClients
		discarded += st.Discarded
	}
	counter("setcam_dashboard_evicted_total", "Dashboard clients evicted for falling behind", evicted)
	counter("setcam_dashboard_discarded_total", "Dashboard broadcasts discarded on a full queue", discarded)

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}

func boolGauge(v bool) int {
	if v {
		return 1
	}
	return 0
}
