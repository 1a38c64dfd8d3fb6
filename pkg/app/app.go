package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/analysis"
	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/camera/device"
	"github.com/lilin454/setcam-bot/pkg/detection"
	"github.com/lilin454/setcam-bot/pkg/detection/contour"
	"github.com/lilin454/setcam-bot/pkg/ingest"
	"github.com/lilin454/setcam-bot/pkg/protocol"
	"github.com/lilin454/setcam-bot/pkg/publish"
	"github.com/lilin454/setcam-bot/pkg/rtc"
	"github.com/lilin454/setcam-bot/pkg/web"
)

// App is the setcam application context. It owns every component and
// their lifecycle: New, Init, Run, Shutdown.
type App struct {
	config Config

	// Camera
	cameraManager *camera.Manager
	push          *camera.PushSource // nil with a device source
	device        *device.Source     // nil with a push source
	camera        *camera.Controller

	// Analysis
	detector detection.Detector
	analyzer *analysis.Analyzer
	loop     *analysis.Loop

	// Transport
	ingest    *ingest.Hub
	rtc       *rtc.Receiver
	webServer *web.Server
	publisher publish.Publisher

	mu        sync.Mutex
	runCtx    context.Context
	stopLogs  func()
	shutdown  bool
	initiated bool
}

// New creates an application with the given configuration.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		runCtx: context.Background(),
	}, nil
}

// Init creates and wires all components. Call it after New and before Run.
func (a *App) Init() error {
	if a.initiated {
		return nil
	}

	camCfg := camera.DefaultConfig()
	camCfg.Facing = a.config.Facing
	a.cameraManager = camera.NewManager(camCfg)

	if err := a.initCamera(camCfg); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	if err := a.initDetector(); err != nil {
		return fmt.Errorf("detector init: %w", err)
	}

	a.analyzer = analysis.NewAnalyzer(a.camera, a.detector)
	a.analyzer.SetSensitivity(a.config.Sensitivity)
	a.analyzer.OnResult = a.handleResult
	a.analyzer.OnError = a.handleAnalysisError
	a.loop = analysis.NewLoop(a.analyzer, a.config.Interval)

	if err := a.initPublisher(); err != nil {
		return fmt.Errorf("publisher init: %w", err)
	}

	a.initWeb()

	a.initiated = true
	log.Info("setcam initialized",
		"source", a.config.Source,
		"detector", a.config.Detector,
		"interval", a.config.Interval,
		"sensitivity", a.config.Sensitivity,
	)
	return nil
}

func (a *App) initCamera(cfg camera.Config) error {
	switch a.config.Source {
	case SourceDevice:
		a.device = device.New(cfg)
		a.cameraManager.OnConfigChange = a.device.ApplyConfig
		a.camera = camera.NewController(a.device, a.config.Facing)

	case SourcePush:
		a.push = camera.NewPushSource()
		a.ingest = ingest.NewHub(a.push)
		a.rtc = rtc.NewReceiver(a.push, a.config.ICEServers...)

		// Producers own the physical camera; tell them what to open.
		a.push.OnFacing = func(f camera.Facing) {
			a.ingest.RequestCamera(a.facingRequest(f, true))
		}
		a.push.OnRelease = func() {
			a.ingest.RequestCamera(a.facingRequest(a.push.Facing(), false))
		}
		a.cameraManager.OnConfigChange = func(camera.Config) error {
			if a.push.Active() {
				a.ingest.RequestCamera(a.facingRequest(a.push.Facing(), true))
			}
			return nil
		}
		a.ingest.OnError(a.handleProducerError)
		a.camera = camera.NewController(a.push, a.config.Facing)

	default:
		return fmt.Errorf("unknown source %q", a.config.Source)
	}
	return nil
}

func (a *App) facingRequest(f camera.Facing, active bool) protocol.FacingData {
	cfg := a.cameraManager.GetConfig()
	return protocol.FacingData{
		Facing:      string(f),
		Active:      active,
		IdealWidth:  cfg.IdealWidth,
		IdealHeight: cfg.IdealHeight,
		MinWidth:    cfg.MinWidth,
		MinHeight:   cfg.MinHeight,
		Quality:     cfg.Quality,
		IntervalMS:  int(a.loop.Interval().Milliseconds()),
	}
}

func (a *App) initDetector() error {
	switch a.config.Detector {
	case DetectorMock:
		a.detector = detection.NewMock(a.config.Seed)
	case DetectorContour:
		// No classifier ships yet; regions are found but every pass
		// reports ErrNoClassifier.
		a.detector = contour.New(contour.DefaultConfig(), nil)
	default:
		return fmt.Errorf("unknown detector %q", a.config.Detector)
	}
	return nil
}

func (a *App) initPublisher() error {
	if a.config.NATSURL == "" {
		a.publisher = publish.Nop{}
		return nil
	}
	p, err := publish.DialNATS(a.config.NATSURL, a.config.NATSSubject)
	if err != nil {
		return err
	}
	log.Info("publishing results to nats", "url", a.config.NATSURL, "subject", p.Subject())
	a.publisher = p
	return nil
}

func (a *App) initWeb() {
	a.webServer = web.NewServer(a, web.Options{
		Port:      a.config.Port,
		StaticDir: a.config.StaticDir,
		Version:   a.config.Version,
		Debug:     a.config.Debug,
		Camera:    a.cameraManager,
	})
	if a.ingest != nil {
		a.ingest.RegisterRoutes(a.webServer.App())
		a.ingest.RegisterAPIRoutes(a.webServer.API())
	}
	if a.rtc != nil {
		a.rtc.RegisterRoutes(a.webServer.API())
	}
}

// Web returns the dashboard server.
func (a *App) Web() *web.Server {
	return a.webServer
}

// PushSource returns the push frame source, or nil with a device source.
func (a *App) PushSource() *camera.PushSource {
	return a.push
}

// Run serves the dashboard until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	if !a.initiated {
		return errors.New("app: Init must be called before Run")
	}

	a.mu.Lock()
	a.runCtx = ctx
	a.stopLogs = log.Subscribe(a.webServer.PublishLog)
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.webServer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the timer, releases the camera and closes every
// component. It is safe to call more than once.
func (a *App) Shutdown() {
	a.mu.Lock()
	if a.shutdown || !a.initiated {
		a.mu.Unlock()
		return
	}
	a.shutdown = true
	stopLogs := a.stopLogs
	a.mu.Unlock()

	if stopLogs != nil {
		stopLogs()
	}
	log.Info("shutting down")

	a.loop.Stop()
	if err := a.camera.Stop(); err != nil {
		log.Warn("camera stop", "error", err)
	}
	if a.rtc != nil {
		a.rtc.Close()
	}
	if err := a.detector.Close(); err != nil {
		log.Warn("detector close", "error", err)
	}
	if err := a.publisher.Close(); err != nil {
		log.Warn("publisher close", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.webServer.Shutdown(ctx); err != nil {
		log.Warn("web shutdown", "error", err)
	}
}

func (a *App) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runCtx
}

// StartCamera acquires the camera and starts automatic analysis.
func (a *App) StartCamera(ctx context.Context) error {
	if err := a.camera.Start(ctx); err != nil {
		a.reportCamera(err)
		a.webServer.PublishStatus(camera.Describe(err))
		return err
	}
	a.loop.Start(a.context())
	log.Info("camera started", "facing", a.camera.Facing(), "interval", a.loop.Interval())
	a.webServer.PublishStatus("Camera started; analyzing automatically")
	return nil
}

// StopCamera releases the camera, halts the timer and clears results.
func (a *App) StopCamera() error {
	a.loop.Stop()
	err := a.camera.Stop()
	a.analyzer.ClearResults()
	if err != nil {
		a.report(err)
		return err
	}
	log.Info("camera stopped")
	a.webServer.PublishStatus("Camera stopped")
	return nil
}

// SwitchCamera toggles between the user and environment cameras. A running
// camera is stopped before the other one is started; if that start fails
// the camera stays stopped.
func (a *App) SwitchCamera(ctx context.Context) error {
	err := a.camera.SwitchFacing(ctx)
	if err != nil {
		if !a.camera.Active() {
			a.loop.Stop()
			a.analyzer.ClearResults()
		}
		a.reportCamera(fmt.Errorf("switch camera: %w", err))
		a.webServer.PublishStatus(camera.Describe(err))
		return err
	}
	log.Info("camera switched", "facing", a.camera.Facing())
	a.webServer.PublishStatus("Switched to " + string(a.camera.Facing()) + " camera")
	return nil
}

// AnalyzeNow runs one pass immediately.
func (a *App) AnalyzeNow(ctx context.Context) (*analysis.Result, error) {
	res, err := a.analyzer.Analyze(ctx)
	if err != nil {
		// Capture and detection failures are reported by OnError.
		if errors.Is(err, camera.ErrNotActive) || errors.Is(err, analysis.ErrBusy) {
			a.report(err)
		}
		return nil, err
	}
	return res, nil
}

// LatestResult returns the most recent result, or nil.
func (a *App) LatestResult() *analysis.Result {
	return a.analyzer.Latest()
}

// SetInterval changes the automatic analysis interval. 0 disables it.
func (a *App) SetInterval(d time.Duration) error {
	if d < 0 {
		return &ConfigError{Field: "Interval", Message: "interval must be >= 0"}
	}
	a.loop.SetInterval(d)
	log.Info("analysis interval changed", "interval", d)
	a.webServer.PublishStatus("")
	return nil
}

// SetSensitivity changes the detection sensitivity for subsequent passes.
func (a *App) SetSensitivity(s detection.Sensitivity) {
	a.analyzer.SetSensitivity(s)
	log.Info("sensitivity changed", "sensitivity", s)
	a.webServer.PublishStatus("")
}

// Status returns a snapshot of the application state.
func (a *App) Status() protocol.StatusData {
	stats := a.analyzer.Stats()
	st := protocol.StatusData{
		CameraActive: a.camera.Active(),
		Facing:       string(a.camera.Facing()),
		Source:       a.config.Source,
		LoopRunning:  a.loop.Running(),
		IntervalMS:   a.loop.Interval().Milliseconds(),
		Sensitivity:  string(a.analyzer.Sensitivity()),
		Busy:         stats.Busy,
		Passes:       stats.Passes,
		SkippedTicks: stats.SkippedTicks,
		LastProcess:  stats.LastProcessMS,
	}
	if a.push != nil {
		st.Producers = a.push.Producers()
	}
	return st
}

// Stats returns the analyzer counters.
func (a *App) Stats() analysis.Stats {
	return a.analyzer.Stats()
}

func (a *App) handleResult(res *analysis.Result) {
	a.webServer.PublishResult(res)
	if err := a.publisher.Publish(a.context(), res); err != nil {
		log.Warn("publish result", "error", err)
	}
	log.Debug("analysis pass",
		"frame", res.FrameID,
		"cards", len(res.Cards),
		"sets", len(res.Sets),
		"ms", res.ProcessMS,
	)
}

func (a *App) handleAnalysisError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	a.report(err)
}

// handleProducerError is called when a producer fails to open its camera.
func (a *App) handleProducerError(producerID string, err error) {
	log.Warn("producer camera error", "producer", producerID, "error", err)
	if a.camera.Active() {
		a.loop.Stop()
		if err := a.camera.Stop(); err != nil {
			log.Warn("camera stop", "error", err)
		}
		a.analyzer.ClearResults()
	}
	a.reportCamera(err)
	a.webServer.PublishStatus(camera.Describe(err))
}

// report surfaces an error to the operator.
func (a *App) report(err error) {
	log.Warn("operation failed", "error", err)
	a.webServer.PublishError(web.ErrorCode(err), web.Describe(err))
}

// reportCamera surfaces a camera acquisition error to the operator.
func (a *App) reportCamera(err error) {
	log.Warn("camera failed", "error", err)
	a.webServer.PublishError(web.ErrorCode(err), camera.Describe(err))
}
