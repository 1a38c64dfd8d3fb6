package setgame

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCard_String(t *testing.T) {
	tests := []struct {
		card Card
		want string
	}{
		{card(1, Oval, Red, Solid, 1), "1 red oval (solid)"},
		{card(2, Diamond, Green, Striped, 1), "2 green diamonds (striped)"},
		{card(3, Squiggle, Purple, Open, 1), "3 purple squiggles (open)"},
	}

	for _, tc := range tests {
		if got := tc.card.String(); got != tc.want {
			t.Errorf("String: got %q, want %q", got, tc.want)
		}
	}
}

func TestCard_UnmarshalJSON(t *testing.T) {
	data := `{"number":2,"shape":"squiggle","color":"purple","shading":"striped","confidence":0.8,
		"region":{"x":10,"y":20,"width":120,"height":168}}`

	var c Card
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Card{
		Number: Two, Shape: Squiggle, Color: Purple, Shading: Striped, Confidence: 0.8,
		Region: Region{X: 10, Y: 20, Width: 120, Height: 168},
	}
	if c != want {
		t.Errorf("got %+v, want %+v", c, want)
	}
}

func TestCard_UnmarshalUnknownName(t *testing.T) {
	var c Card
	err := json.Unmarshal([]byte(`{"number":1,"shape":"triangle","color":"red","shading":"open"}`), &c)
	if !errors.Is(err, ErrInvalidCard) {
		t.Errorf("expected ErrInvalidCard, got %v", err)
	}
}

func TestCard_MarshalJSONNames(t *testing.T) {
	b, err := json.Marshal(card(3, Diamond, Green, Open, 0.5))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if raw["shape"] != "diamond" || raw["color"] != "green" || raw["shading"] != "open" {
		t.Errorf("unexpected encoding: %s", b)
	}
	if raw["number"] != float64(3) {
		t.Errorf("number: got %v, want 3", raw["number"])
	}
}

func TestCard_Validate(t *testing.T) {
	tests := []struct {
		name    string
		card    Card
		wantErr bool
	}{
		{"valid", card(1, Oval, Red, Solid, 1), false},
		{"number zero", card(0, Oval, Red, Solid, 1), true},
		{"number four", card(4, Oval, Red, Solid, 1), true},
		{"bad shape", Card{Number: 1, Shape: 3}, true},
		{"bad color", Card{Number: 1, Color: 9}, true},
		{"bad shading", Card{Number: 1, Shading: 3}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.card.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
