package setgame

// Combination is a valid set found among the input cards.
type Combination struct {
	// Indices are the positions of the three cards in the input, ascending.
	Indices [3]int `json:"indices"`

	Cards [3]Card `json:"cards"`

	// Confidence is the lowest confidence of the three members.
	Confidence float64 `json:"confidence"`
}

// IsSet reports whether a, b and c form a set: every attribute is either
// identical on all three cards or pairwise different.
func IsSet(a, b, c Card) bool {
	x, y, z := a.attrs(), b.attrs(), c.attrs()
	for i := range x {
		same := x[i] == y[i] && y[i] == z[i]
		distinct := x[i] != y[i] && y[i] != z[i] && x[i] != z[i]
		if !same && !distinct {
			return false
		}
	}
	return true
}

// Third returns the attributes of the only card that completes a set with a and b.
// Confidence and region are left zero. Both inputs must be valid cards.
func Third(a, b Card) Card {
	x, y := a.attrs(), b.attrs()
	var z [4]uint8
	for i := range x {
		// equal values stay equal, different values yield the missing one
		z[i] = (6 - x[i] - y[i]) % 3
	}
	return Card{
		Number:  Number(z[0] + 1),
		Shape:   Shape(z[1]),
		Color:   Color(z[2]),
		Shading: Shading(z[3]),
	}
}

// FindSets returns every combination of three input cards that forms a set,
// ordered by (i, j, k). Fewer than three cards yield no combinations.
func FindSets(cards []Card) []Combination {
	var sets []Combination
	for i := 0; i < len(cards)-2; i++ {
		for j := i + 1; j < len(cards)-1; j++ {
			for k := j + 1; k < len(cards); k++ {
				if IsSet(cards[i], cards[j], cards[k]) {
					sets = append(sets, combine(cards, i, j, k))
				}
			}
		}
	}
	return sets
}

// FindSetsFast returns the same combinations as FindSets in the same order, but
// looks up the completing card of each pair instead of trying every third card.
func FindSetsFast(cards []Card) []Combination {
	if len(cards) < 3 {
		return nil
	}
	for _, c := range cards {
		if c.Validate() != nil {
			return FindSets(cards)
		}
	}

	var index [81][]int
	for i, c := range cards {
		index[c.key()] = append(index[c.key()], i)
	}

	var sets []Combination
	for i := 0; i < len(cards)-2; i++ {
		for j := i + 1; j < len(cards)-1; j++ {
			for _, k := range index[Third(cards[i], cards[j]).key()] {
				if k > j {
					sets = append(sets, combine(cards, i, j, k))
				}
			}
		}
	}
	return sets
}

func combine(cards []Card, i, j, k int) Combination {
	return Combination{
		Indices:    [3]int{i, j, k},
		Cards:      [3]Card{cards[i], cards[j], cards[k]},
		Confidence: min(cards[i].Confidence, cards[j].Confidence, cards[k].Confidence),
	}
}
