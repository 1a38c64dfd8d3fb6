// Package protocol defines the WebSocket message types exchanged between
// the setcam server, frame producers and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Producer → Server messages
	TypeFrame MessageType = "frame" // Camera frame
	TypeError MessageType = "error" // Camera failure (also Server → Dashboard)

	// Server → Producer messages
	TypeFacing MessageType = "facing" // Open/close the camera with a facing mode

	// Server → Dashboard messages
	TypeResult MessageType = "result" // Analysis result
	TypeStatus MessageType = "status" // Application status
	TypeLog    MessageType = "log"    // Log entry

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Producer → Server Message Types
// =============================================================================

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width,omitempty"`  // 0 = read from the JPEG header
	Height  int    `json:"height,omitempty"` // 0 = read from the JPEG header
	Format  string `json:"format"`           // "jpeg"
	Data    string `json:"data"`             // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// ErrorData reports a camera failure. Code is one of the camera error codes
// ("permission_denied", "not_found", "busy", "unsupported") or a browser
// error name.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Server → Producer Message Types
// =============================================================================

// FacingData asks the producer to open (Active) or release its camera.
type FacingData struct {
	Facing      string `json:"facing"` // "user" or "environment"
	Active      bool   `json:"active"`
	IdealWidth  int    `json:"ideal_width,omitempty"`
	IdealHeight int    `json:"ideal_height,omitempty"`
	MinWidth    int    `json:"min_width,omitempty"`
	MinHeight   int    `json:"min_height,omitempty"`
	Quality     int    `json:"quality,omitempty"` // JPEG quality 1-100
	IntervalMS  int    `json:"interval_ms,omitempty"`
}

// =============================================================================
// Server → Dashboard Message Types
// =============================================================================

// CardData is a detected card with its display text.
type CardData struct {
	setgame.Card
	Description string `json:"description"`
}

// SetData is a matched set.
type SetData struct {
	Indices    [3]int  `json:"indices"`
	Confidence float64 `json:"confidence"`
}

// ResultData contains one analysis result
type ResultData struct {
	ID          string     `json:"id"`
	FrameID     uint64     `json:"frame_id"`
	FrameWidth  int        `json:"frame_width"`
	FrameHeight int        `json:"frame_height"`
	Cards       []CardData `json:"cards"`
	Sets        []SetData  `json:"sets"`
	Dropped     int        `json:"dropped"`
	ProcessMS   float64    `json:"process_time_ms"`
	Timestamp   int64      `json:"timestamp"` // Unix milliseconds
}

// StatusData contains application state
type StatusData struct {
	CameraActive bool    `json:"camera_active"`
	Facing       string  `json:"facing"`
	Source       string  `json:"source"`
	Producers    int     `json:"producers"`
	LoopRunning  bool    `json:"loop_running"`
	IntervalMS   int64   `json:"interval_ms"`
	Sensitivity  string  `json:"sensitivity"`
	Busy         bool    `json:"busy"`
	Passes       int64   `json:"passes"`
	SkippedTicks int64   `json:"skipped_ticks"`
	LastProcess  float64 `json:"last_process_time_ms"`
	Message      string  `json:"message,omitempty"`
}

// LogData contains one log entry
type LogData struct {
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Time    int64             `json:"time"` // Unix milliseconds
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
