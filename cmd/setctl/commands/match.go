package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// match: find every valid triple in a JSON list of cards.
func matchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "match [cards.json]",
		Short: "Find all sets in a JSON array of cards (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			cards, err := readCards(r)
			if err != nil {
				return err
			}
			sets := setgame.FindSets(cards)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sets)
			}
			printSets(out, cards, sets)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the combinations as JSON")
	return cmd
}

func readCards(r io.Reader) ([]setgame.Card, error) {
	var cards []setgame.Card
	if err := json.NewDecoder(r).Decode(&cards); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	for i, c := range cards {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
	}
	return cards, nil
}

func printSets(w io.Writer, cards []setgame.Card, sets []setgame.Combination) {
	fmt.Fprintf(w, "%d cards, %d sets\n", len(cards), len(sets))
	for n, s := range sets {
		fmt.Fprintf(w, "Set %d (%.0f%%)\n", n+1, s.Confidence*100)
		for i, idx := range s.Indices {
			fmt.Fprintf(w, "  #%d %s\n", idx+1, s.Cards[i])
		}
	}
}
