package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lilin454/setcam-bot/pkg/setgame"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
		},
		{
			name:    "facing message",
			msgType: TypeFacing,
			data:    FacingData{Facing: "user", Active: true},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestFrameMessage(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}

	msg, err := NewFrameMessage(0, 0, jpeg, 9)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := parsed.GetFrameData()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Format != "jpeg" || frame.FrameID != 9 || frame.Width != 0 {
		t.Errorf("frame = %+v", frame)
	}
	decoded, err := frame.DecodeFrameData()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, jpeg) {
		t.Errorf("decoded = %v, want %v", decoded, jpeg)
	}
	if strings.Contains(string(raw), `"width"`) {
		t.Errorf("zero width should be omitted: %s", raw)
	}
}

func TestResultMessage(t *testing.T) {
	cards := []setgame.Card{
		{Number: 1, Shape: setgame.Oval, Color: setgame.Red, Shading: setgame.Solid, Confidence: 0.9},
		{Number: 2, Shape: setgame.Oval, Color: setgame.Red, Shading: setgame.Solid, Confidence: 0.75},
		{Number: 3, Shape: setgame.Oval, Color: setgame.Red, Shading: setgame.Solid, Confidence: 0.8},
	}
	sets := setgame.FindSets(cards)
	ts := time.UnixMilli(1700000000000)

	msg, err := NewResultMessage("r1", 4, 640, 480, cards, sets, 1, 2500*time.Microsecond, ts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := msg.GetResultData()
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Cards) != 3 || res.Cards[1].Description != "2 red ovals (solid)" {
		t.Errorf("cards = %+v", res.Cards)
	}
	if res.Cards[0].Shape != setgame.Oval || res.Cards[0].Number != 1 {
		t.Errorf("embedded card lost: %+v", res.Cards[0])
	}
	if len(res.Sets) != 1 || res.Sets[0].Indices != [3]int{0, 1, 2} || res.Sets[0].Confidence != 0.75 {
		t.Errorf("sets = %+v", res.Sets)
	}
	if res.ProcessMS != 2.5 || res.Timestamp != ts.UnixMilli() || res.Dropped != 1 {
		t.Errorf("metadata = %+v", res)
	}

	var generic map[string]any
	json.Unmarshal(msg.Data, &generic)
	card := generic["cards"].([]any)[0].(map[string]any)
	if card["shape"] != "oval" || card["color"] != "red" {
		t.Errorf("card JSON = %v", card)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, _ := NewErrorMessage("permission_denied", "NotAllowedError")
	data, err := msg.GetErrorData()
	if err != nil {
		t.Fatal(err)
	}
	if data.Code != "permission_denied" || data.Message != "NotAllowedError" {
		t.Errorf("error data = %+v", data)
	}
}

func TestPingPongMessage(t *testing.T) {
	ping, _ := NewPingMessage("p-1")
	pd, err := ping.GetPingData()
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != "p-1" || pd.Timestamp == 0 {
		t.Errorf("ping = %+v", pd)
	}

	pong, _ := NewPongMessage(pd.ID, 1000, 1042)
	po, err := pong.GetPongData()
	if err != nil {
		t.Fatal(err)
	}
	if po.LatencyMs != 42 || po.ID != "p-1" {
		t.Errorf("pong = %+v", po)
	}
}

func TestStatusAndFacing(t *testing.T) {
	msg, _ := NewStatusMessage(StatusData{CameraActive: true, Facing: "user", IntervalMS: 1000, Sensitivity: "medium"})
	st, err := msg.GetStatusData()
	if err != nil {
		t.Fatal(err)
	}
	if !st.CameraActive || st.IntervalMS != 1000 {
		t.Errorf("status = %+v", st)
	}

	msg, _ = NewFacingMessage(FacingData{Facing: "environment", Active: true, IdealWidth: 1280})
	fd, err := msg.GetFacingData()
	if err != nil {
		t.Fatal(err)
	}
	if fd.Facing != "environment" || !fd.Active || fd.IdealWidth != 1280 {
		t.Errorf("facing = %+v", fd)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"no type", `{"ts": 1}`},
		{"wrong type", `{"type": 5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.data)); err == nil {
				t.Error("ParseMessage() expected error")
			}
		})
	}
}

func BenchmarkNewFrameMessage(b *testing.B) {
	jpeg := make([]byte, 64*1024)
	for i := 0; i < b.N; i++ {
		NewFrameMessage(1280, 720, jpeg, uint64(i))
	}
}
