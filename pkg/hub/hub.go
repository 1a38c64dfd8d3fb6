package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

// queueSize bounds pending broadcasts before new ones are discarded.
const queueSize = 256

// Stats are cumulative hub counters.
type Stats struct {
	Clients     int   `json:"clients"`
	Delivered   int64 `json:"delivered"`
	Discarded   int64 `json:"discarded"`    // broadcasts lost to a full queue
	SlowClients int64 `json:"slow_clients"` // clients evicted for a full buffer
}

// Hub owns a set of dashboard clients and delivers every broadcast to
// each of them. Clients that cannot keep up are evicted, never waited on.
type Hub struct {
	name string

	clients    map[*Client]struct{}
	queue      chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	stopOnce   sync.Once

	// mu guards clients for readers outside Run.
	mu sync.RWMutex

	running     atomic.Bool
	delivered   atomic.Int64
	discarded   atomic.Int64
	slowClients atomic.Int64

	// Welcome, if set, returns the messages a new client receives before
	// any broadcast, such as the current status or the latest result.
	Welcome func() []Message
}

// New creates a hub. name only appears in logs.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]struct{}),
		queue:      make(chan Message, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.stopOnce.Do(func() { close(h.done) })
	}()

	logger := log.With("hub", h.name)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.evictLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.greet(c)
			logger.Debug("client connected", "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.evictLocked(c)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logger.Debug("client disconnected", "clients", n)

		case m := <-h.queue:
			h.mu.Lock()
			for c := range h.clients {
				if !c.offer(m) {
					h.evictLocked(c)
					h.slowClients.Add(1)
					logger.Warn("evicted slow client")
					continue
				}
				h.delivered.Add(1)
			}
			h.mu.Unlock()
		}
	}
}

// join hands c to Run. It reports false once Run has returned.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave hands c back to Run for eviction. After Run has returned every
// client is already evicted.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) greet(c *Client) {
	if h.Welcome == nil {
		return
	}
	for _, m := range h.Welcome() {
		c.offer(m)
	}
}

// evictLocked drops c and closes its queue. h.mu must be held.
func (h *Hub) evictLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues m for every client. It never blocks; when the queue is
// full the message is discarded and counted. Broadcast must not log: the
// logs hub feeds every log entry back into it.
func (h *Hub) Broadcast(m Message) {
	select {
	case h.queue <- m:
	default:
		h.discarded.Add(1)
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastProtocol broadcasts a protocol envelope.
func (h *Hub) BroadcastProtocol(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:     h.ClientCount(),
		Delivered:   h.delivered.Load(),
		Discarded:   h.discarded.Load(),
		SlowClients: h.slowClients.Load(),
	}
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
