// Package detection turns camera frames into Set cards.
package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// Detector is the interface for card detection backends
type Detector interface {
	// Detect finds cards in the frame
	Detect(ctx context.Context, frame *camera.Frame) ([]setgame.Card, error)

	// Close releases resources
	Close() error
}

// Sensitivity controls how confident a detection must be to be matched.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// DefaultSensitivity is used when none is configured.
const DefaultSensitivity = SensitivityMedium

// ParseSensitivity accepts low, medium or high (case-insensitive).
func ParseSensitivity(s string) (Sensitivity, error) {
	switch v := Sensitivity(strings.ToLower(strings.TrimSpace(s))); v {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return v, nil
	}
	return "", fmt.Errorf("unknown sensitivity %q (want low, medium or high)", s)
}

// MinConfidence is the lowest card confidence kept at this sensitivity.
// Higher sensitivity keeps more (less certain) cards.
func (s Sensitivity) MinConfidence() float64 {
	switch s {
	case SensitivityLow:
		return 0.8
	case SensitivityHigh:
		return 0
	}
	return 0.6
}

// Filter returns the cards at or above the sensitivity threshold.
// The input slice is not modified.
func Filter(cards []setgame.Card, s Sensitivity) []setgame.Card {
	min := s.MinConfidence()
	out := make([]setgame.Card, 0, len(cards))
	for _, c := range cards {
		if c.Confidence >= min {
			out = append(out, c)
		}
	}
	return out
}

// Static returns the same cards for every frame.
type Static struct {
	cards []setgame.Card
}

// NewStatic creates a detector that always reports cards.
func NewStatic(cards ...setgame.Card) *Static {
	return &Static{cards: append([]setgame.Card(nil), cards...)}
}

// Detect returns a copy of the fixed cards.
func (s *Static) Detect(ctx context.Context, _ *camera.Frame) ([]setgame.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]setgame.Card(nil), s.cards...), nil
}

// Close is a no-op.
func (s *Static) Close() error { return nil }
