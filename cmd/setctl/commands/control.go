package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lilin454/setcam-bot/internal/httpc"
	"github.com/lilin454/setcam-bot/pkg/analysis"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show camera and analysis status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st protocol.StatusData
			if err := httpc.GetJSON(cmd.Context(), api("/status"), &st); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

// camera start|stop|switch
func cameraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Start, stop or switch the camera",
	}
	for _, action := range []string{"start", "stop", "switch"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: action + " the camera",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var st protocol.StatusData
				if err := httpc.SendJSON(cmd.Context(), http.MethodPost, api("/camera/"+action), nil, &st); err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			},
		})
	}
	return cmd
}

func analyzeCmd() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis pass now (or show the latest result)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res analysis.Result
			var err error
			if latest {
				err = httpc.GetJSON(cmd.Context(), api("/results/latest"), &res)
			} else {
				err = httpc.SendJSON(cmd.Context(), http.MethodPost, api("/analyze"), nil, &res)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "frame %d (%dx%d) in %.1fms, %d dropped\n",
				res.FrameID, res.FrameWidth, res.FrameHeight, res.ProcessMS, res.Dropped)
			printSets(out, res.Cards, res.Sets)
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "show the latest result instead of running a pass")
	return cmd
}

func settingsCmd() *cobra.Command {
	var (
		interval    int
		sensitivity string
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change the analysis interval or sensitivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}
			if cmd.Flags().Changed("interval-ms") {
				body["interval_ms"] = interval
			}
			if cmd.Flags().Changed("sensitivity") {
				body["sensitivity"] = sensitivity
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to change: use --interval-ms or --sensitivity")
			}
			var st protocol.StatusData
			if err := httpc.SendJSON(cmd.Context(), http.MethodPut, api("/settings"), body, &st); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().IntVar(&interval, "interval-ms", 1000, "analysis interval, 0 disables the timer")
	cmd.Flags().StringVar(&sensitivity, "sensitivity", "medium", "low, medium or high")
	return cmd
}

func printStatus(w io.Writer, st protocol.StatusData) {
	data, _ := json.MarshalIndent(st, "", "  ")
	fmt.Fprintln(w, string(data))
}
