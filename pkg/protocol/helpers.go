package protocol

import (
	"encoding/base64"
	"time"

	"github.com/lilin454/setcam-bot/pkg/setgame"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Code:    code,
		Message: message,
	})
}

// NewFacingMessage creates a camera request for producers
func NewFacingMessage(data FacingData) (*Message, error) {
	return NewMessage(TypeFacing, data)
}

// NewResultMessage creates a result message. cards and sets come straight
// from the matcher; set indices refer to positions in cards.
func NewResultMessage(id string, frameID uint64, width, height int, cards []setgame.Card, sets []setgame.Combination, dropped int, process time.Duration, ts time.Time) (*Message, error) {
	data := ResultData{
		ID:          id,
		FrameID:     frameID,
		FrameWidth:  width,
		FrameHeight: height,
		Cards:       make([]CardData, len(cards)),
		Sets:        make([]SetData, len(sets)),
		Dropped:     dropped,
		ProcessMS:   float64(process.Microseconds()) / 1000,
		Timestamp:   ts.UnixMilli(),
	}
	for i, c := range cards {
		data.Cards[i] = CardData{Card: c, Description: c.String()}
	}
	for i, s := range sets {
		data.Sets[i] = SetData{Indices: s.Indices, Confidence: s.Confidence}
	}
	return NewMessage(TypeResult, data)
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewLogMessage creates a log message
func NewLogMessage(level, message string, attrs map[string]string, t time.Time) (*Message, error) {
	return NewMessage(TypeLog, LogData{
		Level:   level,
		Message: message,
		Attrs:   attrs,
		Time:    t.UnixMilli(),
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFacingData extracts a camera request from a message
func (m *Message) GetFacingData() (*FacingData, error) {
	var data FacingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResultData extracts result data from a message
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
