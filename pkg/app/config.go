// Package app wires the camera, detector, analyzer and dashboard into a
// running setcam service.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/lilin454/setcam-bot/internal/config"
	"github.com/lilin454/setcam-bot/pkg/analysis"
	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/detection"
	"github.com/lilin454/setcam-bot/pkg/publish"
)

// Frame sources.
const (
	SourcePush   = "push"   // browser producers over websocket or WebRTC
	SourceDevice = "device" // local V4L2/AVFoundation device via gocv
)

// Detectors.
const (
	DetectorMock    = "mock"
	DetectorContour = "contour"
)

// Default configuration values.
const (
	DefaultPort      = 8080
	DefaultStaticDir = "./web"
)

// Config holds all configuration for the setcam application.
// Flag parsing is done in cmd/setcam/main.go; this struct is data only.
type Config struct {
	// Debug enables request logging and debug-level logs.
	Debug bool

	Port      int
	StaticDir string
	Version   string

	// Source selects where frames come from ("push" or "device").
	Source string
	Facing camera.Facing

	// Detector selects the card detector ("mock" or "contour").
	Detector string
	Seed     uint64

	// Interval between automatic passes. 0 disables the timer.
	Interval    time.Duration
	Sensitivity detection.Sensitivity

	// NATSURL enables result publishing when set.
	NATSURL     string
	NATSSubject string

	// ICEServers are STUN/TURN URLs handed to WebRTC peers.
	ICEServers []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        DefaultPort,
		StaticDir:   DefaultStaticDir,
		Version:     "dev",
		Source:      SourcePush,
		Facing:      camera.FacingEnvironment,
		Detector:    DetectorMock,
		Seed:        uint64(time.Now().UnixNano()),
		Interval:    analysis.DefaultInterval,
		Sensitivity: detection.DefaultSensitivity,
		NATSSubject: publish.DefaultSubject,
	}
}

// LoadEnvConfig applies environment overrides. Call it after flag parsing
// only for values the flags left at their defaults.
func (c *Config) LoadEnvConfig() {
	c.Port = config.Int(config.EnvPort, c.Port)
	c.Source = config.String(config.EnvSource, c.Source)
	c.Interval = config.Millis(config.EnvIntervalMS, c.Interval)
	if s, err := detection.ParseSensitivity(config.String(config.EnvSensitivity, "")); err == nil {
		c.Sensitivity = s
	}
	if seed := config.Int64(config.EnvSeed, 0); seed != 0 {
		c.Seed = uint64(seed)
	}
	c.NATSURL = config.String(config.EnvNATSURL, c.NATSURL)
}

// Validate checks the configuration for values the app cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Message: fmt.Sprintf("port must be 1-65535, got %d", c.Port)}
	}
	switch c.Source {
	case SourcePush, SourceDevice:
	default:
		return &ConfigError{Field: "Source", Message: fmt.Sprintf("source must be %q or %q, got %q", SourcePush, SourceDevice, c.Source)}
	}
	switch c.Detector {
	case DetectorMock, DetectorContour:
	default:
		return &ConfigError{Field: "Detector", Message: fmt.Sprintf("detector must be %q or %q, got %q", DetectorMock, DetectorContour, c.Detector)}
	}
	if !c.Facing.Valid() {
		return &ConfigError{Field: "Facing", Message: fmt.Sprintf("facing must be user or environment, got %q", c.Facing)}
	}
	if c.Interval < 0 {
		return &ConfigError{Field: "Interval", Message: "interval must be >= 0"}
	}
	if _, err := detection.ParseSensitivity(string(c.Sensitivity)); err != nil {
		return &ConfigError{Field: "Sensitivity", Message: err.Error()}
	}
	if c.NATSURL != "" && !strings.Contains(c.NATSURL, "://") {
		return &ConfigError{Field: "NATSURL", Message: "NATS_URL must look like nats://host:4222"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
