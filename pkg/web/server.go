// Package web provides the HTTP API and live dashboard for setcam.
package web

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/analysis"
	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/detection"
	"github.com/lilin454/setcam-bot/pkg/hub"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

// Controller is the application surface the HTTP API drives.
type Controller interface {
	StartCamera(ctx context.Context) error
	StopCamera() error
	SwitchCamera(ctx context.Context) error
	AnalyzeNow(ctx context.Context) (*analysis.Result, error)
	LatestResult() *analysis.Result
	SetInterval(d time.Duration) error
	SetSensitivity(s detection.Sensitivity)
	Status() protocol.StatusData
	Stats() analysis.Stats
}

// Options configures a Server.
type Options struct {
	Port      int
	StaticDir string // served at "/", skipped when empty
	Version   string
	Debug     bool // request logging

	// Camera is the runtime camera configuration exposed on
	// /api/camera/config. Optional.
	Camera *camera.Manager
}

// Server is the dashboard server.
type Server struct {
	app  *fiber.App
	ctrl Controller
	opts Options

	// Hubs for websocket broadcast
	results *hub.Hub
	status  *hub.Hub
	logs    *hub.Hub

	started time.Time
}

// NewServer creates the server and registers its routes. Extra routes
// (producer ingest, WebRTC signalling) can be added through App before
// Start is called.
func NewServer(ctrl Controller, opts Options) *Server {
	s := &Server{
		ctrl:    ctrl,
		opts:    opts,
		results: hub.New("results"),
		status:  hub.New("status"),
		logs:    hub.New("logs"),
		started: time.Now(),
	}

	s.results.Welcome = s.welcomeResult
	s.status.Welcome = s.welcomeStatus

	app := fiber.New(fiber.Config{
		AppName:               "setcam",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/camera/start", s.handleCameraStart)
	api.Post("/camera/stop", s.handleCameraStop)
	api.Post("/camera/switch", s.handleCameraSwitch)
	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Put("/camera/config", s.handlePutCameraConfig)
	api.Get("/camera/presets", s.handleCameraPresets)
	api.Post("/analyze", s.handleAnalyze)
	api.Get("/results/latest", s.handleLatestResult)
	api.Put("/settings", s.handleSettings)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware for dashboard streams
	app.Use("/ws/results", upgradeOnly)
	app.Use("/ws/status", upgradeOnly)
	app.Use("/ws/logs", upgradeOnly)

	app.Get("/ws/results", websocket.New(hub.Handler(s.results)))
	app.Get("/ws/status", websocket.New(hub.Handler(s.status)))
	app.Get("/ws/logs", websocket.New(hub.Handler(s.logs)))

	s.app = app
	return s
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// API returns the /api route group.
func (s *Server) API() fiber.Router {
	return s.app.Group("/api")
}

// Start runs the hubs and serves until ctx is done or Listen fails.
// Static files are mounted last so they never shadow API routes.
func (s *Server) Start(ctx context.Context) error {
	go s.results.Run(ctx)
	go s.status.Run(ctx)
	go s.logs.Run(ctx)

	if s.opts.StaticDir != "" {
		s.app.Static("/", s.opts.StaticDir)
	}

	addr := fmt.Sprintf(":%d", s.opts.Port)
	log.Info("web dashboard listening", "url", fmt.Sprintf("http://localhost:%d", s.opts.Port))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// PublishResult pushes a result to /ws/results subscribers.
func (s *Server) PublishResult(res *analysis.Result) {
	msg, err := res.Message()
	if err != nil {
		log.Warn("encode result", "error", err)
		return
	}
	s.results.BroadcastProtocol(msg)
}

// PublishStatus pushes the current status, with an optional operator
// message, to /ws/status subscribers.
func (s *Server) PublishStatus(message string) {
	st := s.ctrl.Status()
	st.Message = message
	msg, err := protocol.NewStatusMessage(st)
	if err != nil {
		return
	}
	s.status.BroadcastProtocol(msg)
}

// PublishError pushes an error envelope to both status and result
// subscribers so the dashboard shows it wherever it is looking.
func (s *Server) PublishError(code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	s.status.BroadcastProtocol(msg)
	s.results.BroadcastProtocol(msg)
}

// PublishLog pushes a log entry to /ws/logs subscribers.
func (s *Server) PublishLog(e log.Entry) {
	msg, err := protocol.NewLogMessage(e.Level, e.Message, e.Attrs, e.Time)
	if err != nil {
		return
	}
	s.logs.BroadcastProtocol(msg)
}

// ClientCounts returns connected dashboard clients per stream.
func (s *Server) ClientCounts() map[string]int {
	return map[string]int{
		"results": s.results.ClientCount(),
		"status":  s.status.ClientCount(),
		"logs":    s.logs.ClientCount(),
	}
}

func (s *Server) welcomeStatus() []hub.Message {
	msg, err := protocol.NewStatusMessage(s.ctrl.Status())
	if err != nil {
		return nil
	}
	data, err := msg.Bytes()
	if err != nil {
		return nil
	}
	return []hub.Message{hub.NewJSONMessage(data)}
}

func (s *Server) welcomeResult() []hub.Message {
	res := s.ctrl.LatestResult()
	if res == nil {
		return nil
	}
	msg, err := res.Message()
	if err != nil {
		return nil
	}
	data, err := msg.Bytes()
	if err != nil {
		return nil
	}
	return []hub.Message{hub.NewJSONMessage(data)}
}
