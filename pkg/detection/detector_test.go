package detection

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/setgame"
)

func TestParseSensitivity(t *testing.T) {
	tests := []struct {
		in      string
		want    Sensitivity
		wantErr bool
	}{
		{"low", SensitivityLow, false},
		{"Medium", SensitivityMedium, false},
		{" high ", SensitivityHigh, false},
		{"extreme", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSensitivity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	cards := []setgame.Card{
		{Number: 1, Confidence: 0.5},
		{Number: 2, Confidence: 0.65},
		{Number: 3, Confidence: 0.9},
	}
	tests := []struct {
		s    Sensitivity
		want int
	}{
		{SensitivityLow, 1},
		{SensitivityMedium, 2},
		{SensitivityHigh, 3},
		{"", 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.s), func(t *testing.T) {
			if got := Filter(cards, tt.s); len(got) != tt.want {
				t.Errorf("Filter(%q) kept %d, want %d", tt.s, len(got), tt.want)
			}
		})
	}
}

func TestMock_Bounds(t *testing.T) {
	m := NewMock(1)
	frame := &camera.Frame{Width: 1280, Height: 720}

	for range 200 {
		cards, err := m.Detect(context.Background(), frame)
		if err != nil {
			t.Fatal(err)
		}
		if len(cards) < MockMinCards || len(cards) > MockMaxCards {
			t.Fatalf("got %d cards", len(cards))
		}
		for _, c := range cards {
			if err := c.Validate(); err != nil {
				t.Fatalf("invalid card %+v: %v", c, err)
			}
			if c.Confidence < MockMinConf || c.Confidence > 1 {
				t.Errorf("confidence %v out of range", c.Confidence)
			}
			r := c.Region
			if r.Width != 120 || r.Height != 168 {
				t.Errorf("size = %vx%v, want 120x168", r.Width, r.Height)
			}
			if r.X < 0 || r.Y < 0 || r.X+r.Width > 1280 || r.Y+r.Height > 720 {
				t.Errorf("region %+v outside frame", r)
			}
		}
	}
	if m.Calls() != 200 {
		t.Errorf("Calls = %d", m.Calls())
	}
}

func TestMock_SmallFrameWidth(t *testing.T) {
	cards, err := NewMock(3).Detect(context.Background(), &camera.Frame{Width: 320, Height: 240})
	if err != nil {
		t.Fatal(err)
	}
	if cards[0].Region.Width != 80 {
		t.Errorf("width = %v, want 80", cards[0].Region.Width)
	}
}

func TestMock_DeterministicBySeed(t *testing.T) {
	frame := &camera.Frame{Width: 640, Height: 480}
	a, b, c := NewMock(42), NewMock(42), NewMock(43)

	var sameAsOther bool
	for range 10 {
		ca, _ := a.Detect(context.Background(), frame)
		cb, _ := b.Detect(context.Background(), frame)
		cc, _ := c.Detect(context.Background(), frame)
		if !reflect.DeepEqual(ca, cb) {
			t.Fatal("same seed produced different cards")
		}
		if reflect.DeepEqual(ca, cc) {
			sameAsOther = true
		}
	}
	if sameAsOther {
		t.Error("different seeds produced identical output")
	}
}

func TestMock_NoFrame(t *testing.T) {
	m := NewMock(0)
	if _, err := m.Detect(context.Background(), nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("nil frame: err = %v", err)
	}
	if _, err := m.Detect(context.Background(), &camera.Frame{}); !errors.Is(err, ErrNoFrame) {
		t.Errorf("zero frame: err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Detect(ctx, &camera.Frame{Width: 1, Height: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: err = %v", err)
	}
}

func TestStatic(t *testing.T) {
	card := setgame.Card{Number: setgame.Two, Shape: setgame.Oval, Confidence: 1}
	s := NewStatic(card)

	got, err := s.Detect(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got[0].Number = setgame.Three

	again, _ := s.Detect(context.Background(), nil)
	if again[0] != card {
		t.Error("Static returned shared slice")
	}
}
