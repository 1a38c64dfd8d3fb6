// Package analysis runs capture, detection and set matching passes.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/detection"
	"github.com/lilin454/setcam-bot/pkg/protocol"
	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// ErrBusy is returned when a pass is requested while another is running.
var ErrBusy = errors.New("analysis: pass already in progress")

// FrameSource provides frames to analyze. *camera.Controller satisfies it.
type FrameSource interface {
	Active() bool
	CaptureFrame() (*camera.Frame, error)
}

// Result is the outcome of one analysis pass.
type Result struct {
	ID          string                `json:"id"`
	FrameID     uint64                `json:"frame_id"`
	FrameWidth  int                   `json:"frame_width"`
	FrameHeight int                   `json:"frame_height"`
	Cards       []setgame.Card        `json:"cards"`
	Sets        []setgame.Combination `json:"sets"`
	Dropped     int                   `json:"dropped"` // cards below the sensitivity threshold
	Sensitivity detection.Sensitivity `json:"sensitivity"`
	ProcessTime time.Duration         `json:"-"`
	ProcessMS   float64               `json:"process_time_ms"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Message encodes the result as a protocol envelope.
func (r *Result) Message() (*protocol.Message, error) {
	return protocol.NewResultMessage(r.ID, r.FrameID, r.FrameWidth, r.FrameHeight,
		r.Cards, r.Sets, r.Dropped, r.ProcessTime, r.Timestamp)
}

// Stats are cumulative analyzer counters.
type Stats struct {
	Passes          int64   `json:"passes"`
	Failures        int64   `json:"failures"`
	SkippedTicks    int64   `json:"skipped_ticks"`
	SetsFound       int64   `json:"sets_found"`
	LastProcessMS   float64 `json:"last_process_time_ms"`
	Busy            bool    `json:"busy"`
	LastResultFrame uint64  `json:"last_result_frame"`
}

// Analyzer performs analysis passes. At most one pass runs at a time.
type Analyzer struct {
	source   FrameSource
	detector detection.Detector
	match    func([]setgame.Card) []setgame.Combination

	busy atomic.Bool

	mu          sync.RWMutex
	sensitivity detection.Sensitivity
	latest      *Result
	generation  uint64

	passes      atomic.Int64
	failures    atomic.Int64
	skipped     atomic.Int64
	setsFound   atomic.Int64
	lastProcess atomic.Int64 // nanoseconds

	// Callbacks for the application layer
	OnResult func(*Result)
	OnError  func(error)
}

// NewAnalyzer creates an analyzer reading frames from source.
func NewAnalyzer(source FrameSource, detector detection.Detector) *Analyzer {
	return &Analyzer{
		source:      source,
		detector:    detector,
		match:       setgame.FindSetsFast,
		sensitivity: detection.DefaultSensitivity,
	}
}

// SetSensitivity changes the confidence threshold for subsequent passes.
func (a *Analyzer) SetSensitivity(s detection.Sensitivity) {
	a.mu.Lock()
	a.sensitivity = s
	a.mu.Unlock()
}

// Sensitivity returns the current sensitivity.
func (a *Analyzer) Sensitivity() detection.Sensitivity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sensitivity
}

// Busy reports whether a pass is in flight.
func (a *Analyzer) Busy() bool {
	return a.busy.Load()
}

// Analyze runs one pass: capture, detect, filter, match.
func (a *Analyzer) Analyze(ctx context.Context) (*Result, error) {
	if !a.source.Active() {
		return nil, camera.ErrNotActive
	}
	if !a.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer a.busy.Store(false)

	a.mu.RLock()
	gen := a.generation
	sens := a.sensitivity
	a.mu.RUnlock()

	res, err := a.run(ctx, sens)
	if err != nil {
		a.failures.Add(1)
		if a.OnError != nil {
			a.OnError(err)
		}
		return nil, err
	}

	a.passes.Add(1)
	a.setsFound.Add(int64(len(res.Sets)))
	a.lastProcess.Store(int64(res.ProcessTime))

	a.mu.Lock()
	stale := gen != a.generation
	if !stale {
		a.latest = res
	}
	a.mu.Unlock()

	if !stale && a.OnResult != nil {
		a.OnResult(res)
	}
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, sens detection.Sensitivity) (*Result, error) {
	start := time.Now()

	frame, err := a.source.CaptureFrame()
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}

	detected, err := a.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect cards: %w", err)
	}

	cards := detection.Filter(detected, sens)
	sets := a.match(cards)
	if sets == nil {
		sets = []setgame.Combination{}
	}

	elapsed := time.Since(start)
	return &Result{
		ID:          uuid.NewString(),
		FrameID:     frame.ID,
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
		Cards:       cards,
		Sets:        sets,
		Dropped:     len(detected) - len(cards),
		Sensitivity: sens,
		ProcessTime: elapsed,
		ProcessMS:   float64(elapsed.Microseconds()) / 1000,
		Timestamp:   time.Now(),
	}, nil
}

// Latest returns the most recent result, or nil.
func (a *Analyzer) Latest() *Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// ClearResults drops the latest result. Passes already in flight will not
// publish theirs.
func (a *Analyzer) ClearResults() {
	a.mu.Lock()
	a.latest = nil
	a.generation++
	a.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (a *Analyzer) Stats() Stats {
	s := Stats{
		Passes:        a.passes.Load(),
		Failures:      a.failures.Load(),
		SkippedTicks:  a.skipped.Load(),
		SetsFound:     a.setsFound.Load(),
		LastProcessMS: float64(time.Duration(a.lastProcess.Load()).Microseconds()) / 1000,
		Busy:          a.busy.Load(),
	}
	if r := a.Latest(); r != nil {
		s.LastResultFrame = r.FrameID
	}
	return s
}

func (a *Analyzer) skip() {
	a.skipped.Add(1)
}
