package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lilin454/setcam-bot/internal/config"
	"github.com/lilin454/setcam-bot/internal/log"
)

var (
	serverURL string
	verbose   bool
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "setctl",
		Short:         "Control a setcam server and check card triples",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = config.LoadDotEnv()
			level := config.String(config.EnvLogLevel, "warn")
			if verbose {
				level = "debug"
			}
			log.Init(level)
			serverURL = strings.TrimRight(serverURL, "/")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", config.ServerURL("http://localhost:8080"), "setcam base URL (SETCAM_SERVER)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(matchCmd(), statusCmd(), cameraCmd(), analyzeCmd(), settingsCmd(), feedCmd())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return root.ExecuteContext(ctx)
}

// api returns the URL of an API path on the configured server.
func api(path string) string {
	return serverURL + "/api" + path
}

// wsURL turns the configured http(s) base URL into a ws(s) one.
func wsURL(path string) string {
	u := serverURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + path
}
