// Package ingest accepts camera frames from remote producers over WebSocket
// and feeds them into a camera.PushSource.
package ingest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/camera"
	"github.com/lilin454/setcam-bot/pkg/protocol"
)

// maxFrameMessage bounds one base64 frame message.
const maxFrameMessage = 8 * 1024 * 1024

// Producer represents a connected frame producer (browser tab, setctl feed)
type Producer struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Frames    uint64

	mu sync.Mutex
}

// Send sends a message to the producer
func (p *Producer) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from frame producers
type Hub struct {
	mu        sync.RWMutex
	producers map[string]*Producer
	source    *camera.PushSource
	request   *protocol.FacingData // last camera request, replayed to new producers

	// Callbacks
	onError func(producerID string, err error)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesRejected   atomic.Uint64
}

// NewHub creates a producer hub feeding source
func NewHub(source *camera.PushSource) *Hub {
	return &Hub{
		producers: make(map[string]*Producer),
		source:    source,
	}
}

// OnError sets the callback for camera failures reported by producers
func (h *Hub) OnError(callback func(producerID string, err error)) {
	h.mu.Lock()
	h.onError = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws/camera", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Producer connection endpoint
	app.Get("/ws/camera", websocket.New(h.handleProducer))
	app.Get("/ws/camera/:id", websocket.New(h.handleProducer))
}

// handleProducer handles a producer WebSocket connection
func (h *Hub) handleProducer(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	producer := &Producer{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	if old, ok := h.producers[id]; ok {
		old.Conn.Close()
	}
	h.producers[id] = producer
	count := len(h.producers)
	request := h.request
	h.mu.Unlock()

	detach := h.source.Attach()
	logger := log.With("producer", id)
	logger.Info("producer connected", "producers", count)

	defer func() {
		detach()
		h.mu.Lock()
		if h.producers[id] == producer {
			delete(h.producers, id)
		}
		count := len(h.producers)
		h.mu.Unlock()
		logger.Info("producer disconnected", "producers", count)
	}()

	if request != nil {
		if msg, err := protocol.NewFacingMessage(*request); err == nil {
			h.send(producer, msg)
		}
	}

	c.SetReadLimit(maxFrameMessage)

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("producer read error", "error", err)
			return
		}

		producer.mu.Lock()
		producer.LastSeen = time.Now()
		producer.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(producer, data)
	}
}

// handleMessage processes an incoming message from a producer
func (h *Hub) handleMessage(p *Producer, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Debug("producer sent invalid message", "producer", p.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		if err := h.pushFrame(msg); err != nil {
			h.framesRejected.Add(1)
			if !errors.Is(err, camera.ErrNotActive) {
				log.Debug("frame rejected", "producer", p.ID, "error", err)
			}
			return
		}
		p.mu.Lock()
		p.Frames++
		p.mu.Unlock()

	case protocol.TypeError:
		data, err := msg.GetErrorData()
		if err != nil {
			return
		}
		h.mu.RLock()
		cb := h.onError
		h.mu.RUnlock()
		if cb != nil {
			cb(p.ID, camera.ErrorFromCode(data.Code, data.Message))
		}

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		var pingID string
		pingTS := msg.Timestamp
		if ping != nil {
			pingID = ping.ID
			if ping.Timestamp != 0 {
				pingTS = ping.Timestamp
			}
		}
		pong, err := protocol.NewPongMessage(pingID, pingTS, time.Now().UnixMilli())
		if err == nil {
			h.send(p, pong)
		}
	}
}

func (h *Hub) pushFrame(msg *protocol.Message) error {
	frame, err := msg.GetFrameData()
	if err != nil {
		return err
	}
	jpeg, err := frame.DecodeFrameData()
	if err != nil {
		return err
	}
	_, err = h.source.Push(jpeg, frame.Width, frame.Height)
	return err
}

// RequestCamera asks every producer to open (or release) its camera and
// remembers the request for producers that connect later.
func (h *Hub) RequestCamera(req protocol.FacingData) {
	h.mu.Lock()
	h.request = &req
	h.mu.Unlock()

	msg, err := protocol.NewFacingMessage(req)
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

func (h *Hub) send(p *Producer, msg *protocol.Message) error {
	h.messagesSent.Add(1)
	return p.Send(msg)
}

// Broadcast sends a message to all connected producers
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	producers := make([]*Producer, 0, len(h.producers))
	for _, p := range h.producers {
		producers = append(producers, p)
	}
	h.mu.RUnlock()

	for _, p := range producers {
		if err := h.send(p, msg); err != nil {
			log.Debug("broadcast to producer failed", "producer", p.ID, "error", err)
		}
	}
}

// GetProducer returns a producer by ID
func (h *Hub) GetProducer(id string) *Producer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.producers[id]
}

// ProducerCount returns the number of connected producers
func (h *Hub) ProducerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.producers)
}

// Stats contains hub statistics
type Stats struct {
	ProducerCount    int    `json:"producer_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		ProducerCount:    h.ProducerCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesRejected:   h.framesRejected.Load(),
	}
}

// ProducerInfo contains info about a connected producer
type ProducerInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// GetProducerInfos returns info about all connected producers
func (h *Hub) GetProducerInfos() []ProducerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ProducerInfo, 0, len(h.producers))
	for _, p := range h.producers {
		p.mu.Lock()
		infos = append(infos, ProducerInfo{
			ID:        p.ID,
			Connected: p.Connected,
			LastSeen:  p.LastSeen,
			Frames:    p.Frames,
		})
		p.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for producer inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	producers := api.Group("/producers")

	// List connected producers
	producers.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"producers": h.GetProducerInfos(),
			"count":     h.ProducerCount(),
		})
	})

	// Get hub stats
	producers.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
