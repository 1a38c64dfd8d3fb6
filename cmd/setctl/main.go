// setctl is the command line client for setcam.
package main

import (
	"os"

	"github.com/lilin454/setcam-bot/cmd/setctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
