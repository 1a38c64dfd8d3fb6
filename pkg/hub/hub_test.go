package hub

import (
	"context"
	"testing"
	"time"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func attach(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case m, ok := <-c.send:
		return m, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}, false
}

func waitClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.ClientCount(); n != want {
		t.Fatalf("ClientCount = %d, want %d", n, want)
	}
}

func TestHub_Broadcast(t *testing.T) {
	h := startHub(t)
	a, b := attach(h, 4), attach(h, 4)

	waitClients(t, h, 2)

	msg, _ := protocol.NewStatusMessage(protocol.StatusData{CameraActive: true})
	if err := h.BroadcastProtocol(msg); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Client{a, b} {
		m, ok := receive(t, c)
		if !ok || m.Type != JSONMessage {
			t.Fatalf("got %+v, %v", m, ok)
		}
		parsed, err := protocol.ParseMessage(m.Data)
		if err != nil || parsed.Type != protocol.TypeStatus {
			t.Errorf("parsed = %+v, %v", parsed, err)
		}
	}
}

func TestHub_Welcome(t *testing.T) {
	h := New("welcome")
	h.Welcome = func() []Message {
		return []Message{NewJSONMessage([]byte(`{"type":"status"}`))}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := attach(h, 4)
	m, _ := receive(t, c)
	if string(m.Data) != `{"type":"status"}` {
		t.Errorf("welcome = %s", m.Data)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := startHub(t)
	slow := attach(h, 1)

	h.BroadcastJSON(map[string]int{"n": 1})
	h.BroadcastJSON(map[string]int{"n": 2})

	waitClients(t, h, 0)

	receive(t, slow) // buffered message
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_Unregister(t *testing.T) {
	h := startHub(t)
	c := attach(h, 1)
	h.unregister <- c
	h.unregister <- c // second unregister is harmless

	waitClients(t, h, 0)
}

func TestHub_StopClosesClients(t *testing.T) {
	h := New("stop")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := attach(h, 1)
	cancel()
	<-done

	if h.IsRunning() {
		t.Error("hub still running")
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel should be closed on shutdown")
	}
}

func TestHub_Stats(t *testing.T) {
	h := startHub(t)
	a := attach(h, 4)
	slow := attach(h, 0)
	waitClients(t, h, 2)

	h.BroadcastJSON(map[string]string{"type": "status"})
	receive(t, a)
	waitClients(t, h, 1)

	st := h.Stats()
	if st.Clients != 1 || st.Delivered != 1 || st.SlowClients != 1 || st.Discarded != 0 {
		t.Errorf("Stats = %+v", st)
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client channel should be closed")
	}
}

func TestClient_ReplyToPing(t *testing.T) {
	c := &Client{}
	ping, _ := protocol.NewPingMessage("abc")
	data, _ := ping.Bytes()

	reply := c.reply(data)
	if reply == nil {
		t.Fatal("no reply to ping")
	}
	msg, err := protocol.ParseMessage(reply.Data)
	if err != nil || msg.Type != protocol.TypePong {
		t.Fatalf("reply = %s, %v", reply.Data, err)
	}
	pong, err := msg.GetPongData()
	if err != nil || pong.ID != "abc" {
		t.Errorf("pong = %+v, %v", pong, err)
	}

	status, _ := protocol.NewStatusMessage(protocol.StatusData{})
	data, _ = status.Bytes()
	if c.reply(data) != nil {
		t.Error("non-ping messages must not be answered")
	}
	if c.reply([]byte("not json")) != nil {
		t.Error("garbage must not be answered")
	}
}

func TestHub_FullQueueWithLogSubscriber(t *testing.T) {
	h := New("logs")
	cancel := log.Subscribe(func(e log.Entry) { h.BroadcastJSON(e) })
	defer cancel()

	// Nothing drains the queue, so the tail of these records is discarded.
	for i := 0; i < queueSize+10; i++ {
		log.Info("burst", "i", i)
	}

	if got := h.Stats().Discarded; got < 10 {
		t.Errorf("Discarded = %d, want at least 10", got)
	}
	if got := len(h.queue); got != queueSize {
		t.Errorf("queue length = %d, want %d", got, queueSize)
	}
}

func TestHub_JoinAfterStop(t *testing.T) {
	h := New("stopped")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	c := &Client{hub: h, send: make(chan Message, 1)}
	joined := make(chan bool, 1)
	go func() { joined <- h.join(c) }()

	select {
	case ok := <-joined:
		if ok {
			t.Error("join succeeded on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatal("join blocked on a stopped hub")
	}

	left := make(chan struct{})
	go func() {
		h.leave(c)
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave blocked on a stopped hub")
	}
}
