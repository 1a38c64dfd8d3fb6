package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 64, 48)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func startServer(t *testing.T, hub *Hub, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return msg
}

func TestNewHub(t *testing.T) {
	hub := NewHub(camera.NewPushSource())

	if hub.ProducerCount() != 0 {
		t.Error("ProducerCount should be 0 initially")
	}
	if stats := hub.GetStats(); stats.MessagesReceived != 0 || stats.FramesReceived != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if hub.GetProducer("nonexistent") != nil {
		t.Error("GetProducer should return nil for unknown id")
	}
}

func TestProducerConnection(t *testing.T) {
	source := camera.NewPushSource()
	hub := NewHub(source)
	startServer(t, hub, ":18180")

	ws := dial(t, "ws://localhost:18180/ws/camera/phone-1")
	time.Sleep(50 * time.Millisecond)

	if hub.ProducerCount() != 1 || source.Producers() != 1 {
		t.Errorf("ProducerCount = %d, source producers = %d", hub.ProducerCount(), source.Producers())
	}
	if hub.GetProducer("phone-1") == nil {
		t.Error("GetProducer should return the connected producer")
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if hub.ProducerCount() != 0 || source.Producers() != 0 {
		t.Errorf("after close: ProducerCount = %d, source producers = %d", hub.ProducerCount(), source.Producers())
	}
}

func TestGeneratedProducerID(t *testing.T) {
	hub := NewHub(camera.NewPushSource())
	startServer(t, hub, ":18181")

	dial(t, "ws://localhost:18181/ws/camera")
	time.Sleep(50 * time.Millisecond)

	infos := hub.GetProducerInfos()
	if len(infos) != 1 || len(infos[0].ID) != 36 {
		t.Errorf("infos = %+v, want one producer with a uuid", infos)
	}
}

func TestFramesFeedSource(t *testing.T) {
	source := camera.NewPushSource()
	hub := NewHub(source)
	startServer(t, hub, ":18182")

	ws := dial(t, "ws://localhost:18182/ws/camera/feed")
	time.Sleep(50 * time.Millisecond)

	send := func() {
		msg, _ := protocol.NewFrameMessage(0, 0, testJPEG(t), 1)
		data, _ := msg.Bytes()
		ws.WriteMessage(websocket.TextMessage, data)
	}

	// Inactive camera drops frames.
	send()
	time.Sleep(50 * time.Millisecond)
	if stats := hub.GetStats(); stats.FramesRejected != 1 {
		t.Errorf("FramesRejected = %d, want 1", stats.FramesRejected)
	}

	if err := source.Start(context.Background(), camera.FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	send()
	time.Sleep(50 * time.Millisecond)

	frame, err := source.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if frame.Width != 64 || frame.Height != 48 {
		t.Errorf("frame = %dx%d, want 64x48", frame.Width, frame.Height)
	}
	if p := hub.GetProducerInfos(); len(p) != 1 || p[0].Frames != 1 {
		t.Errorf("producer infos = %+v", p)
	}
}

func TestProducerCloseDropsFrame(t *testing.T) {
	source := camera.NewPushSource()
	hub := NewHub(source)
	startServer(t, hub, ":18186")

	ws := dial(t, "ws://localhost:18186/ws/camera/tab")
	time.Sleep(50 * time.Millisecond)

	if err := source.Start(context.Background(), camera.FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	msg, _ := protocol.NewFrameMessage(0, 0, testJPEG(t), 1)
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)
	time.Sleep(50 * time.Millisecond)

	if _, err := source.CaptureFrame(); err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if source.Producers() != 0 {
		t.Fatalf("source producers = %d, want 0", source.Producers())
	}
	if _, err := source.CaptureFrame(); !errors.Is(err, camera.ErrFrameUnavailable) {
		t.Errorf("CaptureFrame after close: err = %v, want ErrFrameUnavailable", err)
	}
}

func TestRequestCamera(t *testing.T) {
	hub := NewHub(camera.NewPushSource())
	startServer(t, hub, ":18183")

	ws := dial(t, "ws://localhost:18183/ws/camera/a")
	time.Sleep(50 * time.Millisecond)

	hub.RequestCamera(protocol.FacingData{Facing: "user", Active: true, IdealWidth: 1280})

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeFacing {
		t.Fatalf("Type = %s, want facing", msg.Type)
	}
	fd, _ := msg.GetFacingData()
	if fd.Facing != "user" || !fd.Active || fd.IdealWidth != 1280 {
		t.Errorf("facing = %+v", fd)
	}

	// A producer joining later gets the pending request immediately.
	late := dial(t, "ws://localhost:18183/ws/camera/b")
	if msg := readMessage(t, late); msg.Type != protocol.TypeFacing {
		t.Errorf("late producer got %s", msg.Type)
	}
}

func TestProducerError(t *testing.T) {
	hub := NewHub(camera.NewPushSource())

	var mu sync.Mutex
	var gotID string
	var gotErr error
	hub.OnError(func(id string, err error) {
		mu.Lock()
		gotID, gotErr = id, err
		mu.Unlock()
	})
	startServer(t, hub, ":18184")

	ws := dial(t, "ws://localhost:18184/ws/camera/tab")
	msg, _ := protocol.NewErrorMessage(camera.CodePermissionDenied, "NotAllowedError")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if gotID != "tab" || !errors.Is(gotErr, camera.ErrPermissionDenied) {
		t.Errorf("OnError got (%q, %v)", gotID, gotErr)
	}
}

func TestPingPong(t *testing.T) {
	hub := NewHub(camera.NewPushSource())
	startServer(t, hub, ":18185")

	ws := dial(t, "ws://localhost:18185/ws/camera/ping-test")
	time.Sleep(50 * time.Millisecond)

	msg, _ := protocol.NewPingMessage("p1")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	resp := readMessage(t, ws)
	if resp.Type != protocol.TypePong {
		t.Fatalf("Type = %s, want pong", resp.Type)
	}
	pong, _ := resp.GetPongData()
	if pong.ID != "p1" || pong.LatencyMs < 0 {
		t.Errorf("pong = %+v", pong)
	}
}

func TestUpgradeRequired(t *testing.T) {
	hub := NewHub(camera.NewPushSource())
	app := fiber.New()
	hub.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/camera", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestAPIRoutes(t *testing.T) {
	hub := NewHub(camera.NewPushSource())
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/producers/", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "producers") {
		t.Errorf("Status = %d, body = %s", resp.StatusCode, body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/api/producers/stats", nil))
	var stats Stats
	json.NewDecoder(resp.Body).Decode(&stats)
	if resp.StatusCode != 200 || stats.ProducerCount != 0 {
		t.Errorf("Status = %d, stats = %+v", resp.StatusCode, stats)
	}
}
