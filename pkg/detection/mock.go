package detection

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// Mock tuning.
const (
	MockMinCards     = 2
	MockMaxCards     = 5
	MockMaxCardWidth = 120
	MockAspect       = 1.4
	MockMinConf      = 0.6
)

// ErrNoFrame is returned when Detect is called without a usable frame.
var ErrNoFrame = errors.New("detection: no frame")

// Mock generates random cards from a seeded PRNG. The same seed fed the
// same sequence of frame sizes yields the same cards.
type Mock struct {
	mu  sync.Mutex
	rng *rand.Rand

	calls int
}

// NewMock creates a mock detector with the given seed.
func NewMock(seed uint64) *Mock {
	return &Mock{rng: rand.New(rand.NewPCG(seed, seed^0x5e7c))}
}

// Detect returns 2-5 cards placed inside the frame.
func (m *Mock) Detect(ctx context.Context, frame *camera.Frame) ([]setgame.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return nil, ErrNoFrame
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	w := min(float64(frame.Width)/4, MockMaxCardWidth)
	h := w * MockAspect
	maxX := max(float64(frame.Width)-w, 0)
	maxY := max(float64(frame.Height)-h, 0)

	n := MockMinCards + m.rng.IntN(MockMaxCards-MockMinCards+1)
	cards := make([]setgame.Card, n)
	for i := range cards {
		cards[i] = setgame.Card{
			Number:     setgame.Number(1 + m.rng.IntN(3)),
			Shape:      setgame.Shape(m.rng.IntN(3)),
			Color:      setgame.Color(m.rng.IntN(3)),
			Shading:    setgame.Shading(m.rng.IntN(3)),
			Confidence: MockMinConf + m.rng.Float64()*(1-MockMinConf),
			Region: setgame.Region{
				X:      m.rng.Float64() * maxX,
				Y:      m.rng.Float64() * maxY,
				Width:  w,
				Height: h,
			},
		}
	}
	return cards, nil
}

// Calls returns how many frames were processed.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }
