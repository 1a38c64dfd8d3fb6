// Package log provides structured logging for setcam.
// It wraps slog and keeps the most recent records in memory so the
// dashboard can show them.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	logger *slog.Logger
	once   sync.Once
	ring   = newRecorder(200)
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		opts := &slog.HandlerOptions{
			Level: ParseLevel(level),
		}

		// Use JSON in production, text in development
		var h slog.Handler
		if os.Getenv("GO_ENV") == "production" {
			h = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			h = slog.NewTextHandler(os.Stdout, opts)
		}

		logger = slog.New(&recordingHandler{next: h, rec: ring})
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Entry is a log record kept for the dashboard.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Recent returns up to n of the newest entries, oldest first.
// n <= 0 returns everything retained.
func Recent(n int) []Entry {
	return ring.recent(n)
}

// Subscribe registers fn for every new entry. fn must not block.
// The returned func unsubscribes.
func Subscribe(fn func(Entry)) (cancel func()) {
	return ring.subscribe(fn)
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	subs    map[int]func(Entry)
	nextSub int
}

func newRecorder(size int) *recorder {
	return &recorder{size: size, subs: make(map[int]func(Entry))}
}

func (r *recorder) add(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.size {
		r.entries = r.entries[len(r.entries)-r.size:]
	}
	subs := make([]func(Entry), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

func (r *recorder) recent(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]Entry, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}

func (r *recorder) subscribe(fn func(Entry)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// recordingHandler forwards to next and copies every emitted record into rec.
type recordingHandler struct {
	next  slog.Handler
	rec   *recorder
	attrs []slog.Attr
	group string
}

func (h *recordingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if n := len(h.attrs) + r.NumAttrs(); n > 0 {
		e.Attrs = make(map[string]string, n)
		for _, a := range h.attrs {
			e.Attrs[h.key(a.Key)] = a.Value.String()
		}
		r.Attrs(func(a slog.Attr) bool {
			e.Attrs[h.key(a.Key)] = a.Value.String()
			return true
		})
	}
	h.rec.add(e)
	return h.next.Handle(ctx, r)
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{
		next:  h.next.WithAttrs(attrs),
		rec:   h.rec,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
		group: h.group,
	}
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &recordingHandler{
		next:  h.next.WithGroup(name),
		rec:   h.rec,
		attrs: h.attrs,
		group: group,
	}
}

func (h *recordingHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
