package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lilin454/setcam-bot/internal/log"
)

// DefaultInterval is the period between automatic passes.
const DefaultInterval = 1000 * time.Millisecond

// Loop triggers analysis passes on a fixed interval. Ticks that arrive
// while a pass is running are counted and dropped, never queued.
type Loop struct {
	analyzer *Analyzer

	mu       sync.Mutex
	interval time.Duration
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewLoop creates a stopped loop. An interval of 0 disables it.
func NewLoop(a *Analyzer, interval time.Duration) *Loop {
	if interval < 0 {
		interval = 0
	}
	return &Loop{analyzer: a, interval: interval}
}

// Start begins ticking. It is a no-op when already running or disabled.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parent = ctx
	l.startLocked()
}

// Stop halts the timer and waits for the loop goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parent = nil
	l.stopLocked()
}

// SetInterval changes the period. A started loop restarts its timer;
// 0 pauses it until a positive interval is set or Stop is called.
func (l *Loop) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.interval = d
	if l.parent == nil {
		return
	}
	l.stopLocked()
	l.startLocked()
}

// Interval returns the configured period.
func (l *Loop) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// Running reports whether the timer is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) startLocked() {
	if l.cancel != nil || l.interval == 0 || l.parent == nil {
		return
	}
	ctx, cancel := context.WithCancel(l.parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	go l.run(ctx, l.interval, done)
}

func (l *Loop) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
}

func (l *Loop) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Debug("analysis loop started", "interval", interval)
	defer log.Debug("analysis loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.analyzer.Busy() {
				l.analyzer.skip()
				continue
			}
			go l.pass(ctx)
		}
	}
}

func (l *Loop) pass(ctx context.Context) {
	if _, err := l.analyzer.Analyze(ctx); errors.Is(err, ErrBusy) {
		l.analyzer.skip()
	}
}
