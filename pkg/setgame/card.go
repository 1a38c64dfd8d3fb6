// Package setgame implements the Set card game rule over detected cards.
//
// A card has four attributes (number, shape, color, shading), each taking one of
// three values. Three cards form a set when, for every attribute, the three values
// are either all the same or all different.
package setgame

import (
	"errors"
	"fmt"
)

// ErrInvalidCard is returned when a card attribute is outside its value range.
var ErrInvalidCard = errors.New("setgame: invalid card")

// Number is the symbol count on a card (1, 2 or 3).
type Number uint8

const (
	One   Number = 1
	Two   Number = 2
	Three Number = 3
)

// Shape is the symbol drawn on a card.
type Shape uint8

const (
	Oval Shape = iota
	Diamond
	Squiggle
)

// Color is the ink color of a card.
type Color uint8

const (
	Red Color = iota
	Green
	Purple
)

// Shading is the fill of the symbols on a card.
type Shading uint8

const (
	Solid Shading = iota
	Striped
	Open
)

var (
	shapeNames   = [3]string{"oval", "diamond", "squiggle"}
	colorNames   = [3]string{"red", "green", "purple"}
	shadingNames = [3]string{"solid", "striped", "open"}
)

func (s Shape) String() string   { return name(shapeNames, uint8(s), "shape") }
func (c Color) String() string   { return name(colorNames, uint8(c), "color") }
func (s Shading) String() string { return name(shadingNames, uint8(s), "shading") }

// Valid reports whether n is 1, 2 or 3.
func (n Number) Valid() bool { return n >= One && n <= Three }

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool { return s <= Squiggle }

// Valid reports whether c is a known color.
func (c Color) Valid() bool { return c <= Purple }

// Valid reports whether s is a known shading.
func (s Shading) Valid() bool { return s <= Open }

// MarshalText encodes the shape as its lowercase name.
func (s Shape) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: shape %d", ErrInvalidCard, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase shape name.
func (s *Shape) UnmarshalText(b []byte) error {
	v, err := parse(shapeNames, string(b), "shape")
	*s = Shape(v)
	return err
}

// MarshalText encodes the color as its lowercase name.
func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: color %d", ErrInvalidCard, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a lowercase color name.
func (c *Color) UnmarshalText(b []byte) error {
	v, err := parse(colorNames, string(b), "color")
	*c = Color(v)
	return err
}

// MarshalText encodes the shading as its lowercase name.
func (s Shading) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: shading %d", ErrInvalidCard, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase shading name.
func (s *Shading) UnmarshalText(b []byte) error {
	v, err := parse(shadingNames, string(b), "shading")
	*s = Shading(v)
	return err
}

func name(names [3]string, v uint8, kind string) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

func parse(names [3]string, s, kind string) (uint8, error) {
	for i, n := range names {
		if n == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidCard, kind, s)
}

// Region locates a card in the frame it was detected in, in pixels.
// The matcher never looks at it.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Card is one detected card.
type Card struct {
	Number     Number  `json:"number"`
	Shape      Shape   `json:"shape"`
	Color      Color   `json:"color"`
	Shading    Shading `json:"shading"`
	Confidence float64 `json:"confidence"` // detection quality, 0-1
	Region     Region  `json:"region"`
}

// Validate checks every attribute is in range.
func (c Card) Validate() error {
	switch {
	case !c.Number.Valid():
		return fmt.Errorf("%w: number %d", ErrInvalidCard, c.Number)
	case !c.Shape.Valid():
		return fmt.Errorf("%w: shape %d", ErrInvalidCard, c.Shape)
	case !c.Color.Valid():
		return fmt.Errorf("%w: color %d", ErrInvalidCard, c.Color)
	case !c.Shading.Valid():
		return fmt.Errorf("%w: shading %d", ErrInvalidCard, c.Shading)
	}
	return nil
}

// String describes the card, e.g. "2 red ovals (striped)".
func (c Card) String() string {
	shape := c.Shape.String()
	if c.Number != One {
		shape += "s"
	}
	return fmt.Sprintf("%d %s %s (%s)", c.Number, c.Color, shape, c.Shading)
}

// attrs returns the four attributes as 0-based values.
func (c Card) attrs() [4]uint8 {
	return [4]uint8{uint8(c.Number) - 1, uint8(c.Shape), uint8(c.Color), uint8(c.Shading)}
}

// key packs the attributes of a valid card into 0..80.
func (c Card) key() int {
	a := c.attrs()
	return int(a[0])*27 + int(a[1])*9 + int(a[2])*3 + int(a[3])
}

// Deck returns all 81 distinct cards, ordered by number, shape, color, shading.
func Deck() []Card {
	deck := make([]Card, 0, 81)
	for n := One; n <= Three; n++ {
		for s := Oval; s <= Squiggle; s++ {
			for c := Red; c <= Purple; c++ {
				for sh := Solid; sh <= Open; sh++ {
					deck = append(deck, Card{Number: n, Shape: s, Color: c, Shading: sh, Confidence: 1})
				}
			}
		}
	}
	return deck
}
