// setcam serves the card-detection dashboard and runs set analysis on
// camera frames.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lilin454/setcam-bot/internal/config"
	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/app"
	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/detection"
)

var version = "dev"

func main() {
	envErr := config.LoadDotEnv()

	cfg := parseFlags()
	log.Init(logLevel(cfg.Debug))
	if envErr != nil {
		log.Warn("could not load .env", "error", envErr)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := a.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment variables provide the flag defaults.
func parseFlags() app.Config {
	cfg := app.DefaultConfig()
	cfg.Version = version
	cfg.LoadEnvConfig()

	debug := flag.Bool("debug", false, "Enable request logging and debug logs")
	port := flag.Int("port", cfg.Port, "HTTP port (SETCAM_PORT)")
	static := flag.String("static", cfg.StaticDir, "Dashboard directory, empty to disable")
	source := flag.String("source", cfg.Source, "Frame source: push or device (SETCAM_SOURCE)")
	facing := flag.String("facing", string(cfg.Facing), "Initial camera: user or environment")
	detector := flag.String("detector", cfg.Detector, "Card detector: mock or contour")
	seed := flag.Uint64("seed", cfg.Seed, "Mock detector seed (SETCAM_SEED)")
	interval := flag.Int("interval-ms", int(cfg.Interval/time.Millisecond), "Analysis interval in ms, 0 disables (SETCAM_INTERVAL_MS)")
	sensitivity := flag.String("sensitivity", string(cfg.Sensitivity), "low, medium or high (SETCAM_SENSITIVITY)")
	natsURL := flag.String("nats", cfg.NATSURL, "NATS server for result publishing (NATS_URL)")
	natsSubject := flag.String("nats-subject", cfg.NATSSubject, "NATS subject for results")
	ice := flag.String("ice", "", "Comma-separated STUN/TURN URLs for WebRTC producers")
	flag.Parse()

	cfg.Debug = *debug
	cfg.Port = *port
	cfg.StaticDir = *static
	cfg.Source = *source
	cfg.Facing = camera.Facing(*facing)
	cfg.Detector = *detector
	cfg.Seed = *seed
	cfg.Interval = time.Duration(*interval) * time.Millisecond
	cfg.NATSURL = *natsURL
	cfg.NATSSubject = *natsSubject
	if s, err := detection.ParseSensitivity(*sensitivity); err == nil {
		cfg.Sensitivity = s
	} else {
		cfg.Sensitivity = detection.Sensitivity(*sensitivity) // rejected by Validate
	}
	if *ice != "" {
		cfg.ICEServers = strings.Split(*ice, ",")
	}
	return cfg
}

func logLevel(debug bool) string {
	if debug {
		return "debug"
	}
	return config.String(config.EnvLogLevel, "info")
}
