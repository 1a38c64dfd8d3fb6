package rtc

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/webrtc/v3"

	"github.com/lilin454/setcam-bot/pkg/camera"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 80, 60)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestReceiver_DataChannelFrames(t *testing.T) {
	source := camera.NewPushSource()
	r := NewReceiver(source)
	defer r.Close()

	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	defer offerer.Close()

	dc, err := offerer.CreateDataChannel(FramesLabel, nil)
	if err != nil {
		t.Fatal(err)
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	gathered := webrtc.GatheringCompletePromise(offerer)
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	<-gathered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, answer, err := r.HandleOffer(ctx, *offerer.LocalDescription())
	if err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if id == "" || answer.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("id = %q, answer type = %s", id, answer.Type)
	}
	if err := offerer.SetRemoteDescription(*answer); err != nil {
		t.Fatal(err)
	}

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Skip("no ICE connectivity in this environment")
	}

	if !waitFor(func() bool { return source.Producers() == 1 }, 2*time.Second) {
		t.Fatal("data channel did not attach a producer")
	}
	if err := source.Start(ctx, camera.FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	if err := dc.Send(testJPEG(t)); err != nil {
		t.Fatal(err)
	}

	var frame *camera.Frame
	waitFor(func() bool {
		frame, err = source.CaptureFrame()
		return err == nil
	}, 2*time.Second)
	if frame == nil || frame.Width != 80 || frame.Height != 60 {
		t.Fatalf("frame = %+v, err = %v", frame, err)
	}

	if err := r.ClosePeer(id); err != nil {
		t.Fatal(err)
	}
	if r.PeerCount() != 0 || source.Producers() != 0 {
		t.Errorf("peers = %d, producers = %d after close", r.PeerCount(), source.Producers())
	}
}

func TestReceiver_ClosePeerUnknown(t *testing.T) {
	r := NewReceiver(camera.NewPushSource())
	if err := r.ClosePeer("missing"); err != ErrUnknownPeer {
		t.Errorf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestReceiver_AttachRemovedPeer(t *testing.T) {
	source := camera.NewPushSource()
	r := NewReceiver(source)

	gone := &peer{id: "gone", detach: func() {}}
	if r.attach(gone) {
		t.Error("attach succeeded for a peer that is not registered")
	}
	if n := source.Producers(); n != 0 {
		t.Errorf("Producers = %d after attaching a removed peer, want 0", n)
	}

	live := &peer{id: "live", detach: func() {}}
	r.mu.Lock()
	r.peers[live.id] = live
	r.mu.Unlock()
	if !r.attach(live) {
		t.Fatal("attach failed for a registered peer")
	}
	if n := source.Producers(); n != 1 {
		t.Errorf("Producers = %d, want 1", n)
	}
	live.detach()
	if n := source.Producers(); n != 0 {
		t.Errorf("Producers = %d after detach, want 0", n)
	}
}

func TestRoutes_RejectBadOffer(t *testing.T) {
	r := NewReceiver(camera.NewPushSource())
	app := fiber.New()
	r.RegisterRoutes(app.Group("/api"))

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"answer instead of offer", `{"type":"answer","sdp":"v=0"}`},
		{"empty sdp", `{"type":"offer"}`},
		{"garbage sdp", `{"type":"offer","sdp":"hello"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/rtc/offer", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, 5000)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Errorf("Status = %d, want 400", resp.StatusCode)
			}
		})
	}

	resp, _ := app.Test(httptest.NewRequest("DELETE", "/api/rtc/nope", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("DELETE unknown peer: Status = %d", resp.StatusCode)
	}
}
