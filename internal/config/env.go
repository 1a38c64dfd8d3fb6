// Package config provides environment helpers for setcam commands.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvPort        = "SETCAM_PORT"
	EnvSource      = "SETCAM_SOURCE"
	EnvIntervalMS  = "SETCAM_INTERVAL_MS"
	EnvSensitivity = "SETCAM_SENSITIVITY"
	EnvSeed        = "SETCAM_SEED"
	EnvServer      = "SETCAM_SERVER"
	EnvNATSURL     = "NATS_URL"
	EnvLogLevel    = "LOG_LEVEL"
)

// LoadDotEnv loads variables from the given files (".env" if none) without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// String returns the env var or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an integer, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Int64 is Int for 64-bit values.
func Int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Millis reads an integer millisecond count as a duration.
func Millis(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// ServerURL returns the setcam server base URL from SETCAM_SERVER.
func ServerURL(def string) string {
	return String(EnvServer, def)
}
