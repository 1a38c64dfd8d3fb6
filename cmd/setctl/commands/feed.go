package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

// feed: act as a frame producer, sending JPEG files to /ws/camera.
func feedCmd() *cobra.Command {
	var (
		interval time.Duration
		loop     bool
		id       string
	)
	cmd := &cobra.Command{
		Use:   "feed frame.jpg [frame.jpg...]",
		Short: "Stream JPEG files to the server as a camera producer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				frames = append(frames, data)
			}

			path := "/ws/camera"
			if id != "" {
				path += "/" + id
			}
			url := wsURL(path)
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), url, nil)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", url, err)
			}
			defer conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s, waiting for the camera to start\n", url)

			return feed(cmd.Context(), conn, frames, interval, loop)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "delay between frames")
	cmd.Flags().BoolVar(&loop, "loop", true, "repeat the files until interrupted")
	cmd.Flags().StringVar(&id, "id", "", "producer id (server assigns one if empty)")
	return cmd
}

// feed sends frames while the server has the camera active. Facing
// requests from the server toggle streaming.
func feed(ctx context.Context, conn *websocket.Conn, frames [][]byte, interval time.Duration, loop bool) error {
	active := make(chan bool, 1)
	readErr := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				log.Debug("ignoring message", "error", err)
				continue
			}
			switch msg.Type {
			case protocol.TypeFacing:
				fd, err := msg.GetFacingData()
				if err != nil {
					continue
				}
				log.Info("camera request", "facing", fd.Facing, "active", fd.Active)
				select {
				case <-active:
				default:
				}
				active <- fd.Active
			case protocol.TypePong:
				log.Debug("pong")
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		streaming bool
		next      int
		frameID   uint64
	)
	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return fmt.Errorf("connection closed: %w", err)
		case streaming = <-active:
		case <-ticker.C:
			if !streaming {
				continue
			}
			if next == len(frames) {
				if !loop {
					return nil
				}
				next = 0
			}
			frameID++
			msg, err := protocol.NewFrameMessage(0, 0, frames[next], frameID)
			if err != nil {
				return err
			}
			data, err := msg.Bytes()
			if err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
			next++
		}
	}
}
