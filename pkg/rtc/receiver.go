// Package rtc receives camera frames over a WebRTC data channel.
//
// The browser creates a peer connection with a data channel labelled
// "frames", posts its offer to /api/rtc/offer and sends one binary JPEG
// per message once the channel opens.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/camera"
)

// FramesLabel is the data channel carrying JPEG frames.
const FramesLabel = "frames"

// ErrUnknownPeer is returned when closing a peer that does not exist.
var ErrUnknownPeer = errors.New("rtc: unknown peer")

type peer struct {
	id     string
	pc     *webrtc.PeerConnection
	detach func()
}

// Receiver answers WebRTC offers and feeds received frames to a PushSource.
type Receiver struct {
	source *camera.PushSource
	config webrtc.Configuration

	mu    sync.Mutex
	peers map[string]*peer

	framesReceived atomic.Uint64
	framesRejected atomic.Uint64
}

// NewReceiver creates a receiver. iceServers are STUN/TURN URLs; none is
// fine on a LAN.
func NewReceiver(source *camera.PushSource, iceServers ...string) *Receiver {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Receiver{
		source: source,
		config: cfg,
		peers:  make(map[string]*peer),
	}
}

// HandleOffer creates a peer connection for offer and returns the answer
// once ICE gathering completes.
func (r *Receiver) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (string, *webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(r.config)
	if err != nil {
		return "", nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &peer{id: uuid.NewString(), pc: pc, detach: func() {}}
	logger := log.With("peer", p.id)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesLabel {
			logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		dc.OnOpen(func() {
			if !r.attach(p) {
				logger.Debug("frame channel opened on a removed peer")
				return
			}
			logger.Info("frame channel open")
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				return
			}
			r.framesReceived.Add(1)
			if _, err := r.source.Push(msg.Data, 0, 0); err != nil {
				r.framesRejected.Add(1)
			}
		})
		dc.OnClose(func() {
			r.remove(p.id)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			r.remove(p.id)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return "", nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", nil, fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return "", nil, ctx.Err()
	}

	r.mu.Lock()
	r.peers[p.id] = p
	r.mu.Unlock()

	return p.id, pc.LocalDescription(), nil
}

// attach registers p as a producer while it is still a live peer. It
// reports false, leaving the producer count unchanged, once p was removed.
func (r *Receiver) attach(p *peer) bool {
	detach := r.source.Attach()
	r.mu.Lock()
	if r.peers[p.id] != p {
		r.mu.Unlock()
		detach()
		return false
	}
	p.detach = detach
	r.mu.Unlock()
	return true
}

// ClosePeer closes one peer connection.
func (r *Receiver) ClosePeer(id string) error {
	r.mu.Lock()
	_, ok := r.peers[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	r.remove(id)
	return nil
}

func (r *Receiver) remove(id string) {
	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	var detach func()
	if ok {
		detach = p.detach
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	detach()
	p.pc.Close()
}

// PeerCount returns the number of open peer connections.
func (r *Receiver) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Stats contains receiver statistics
type Stats struct {
	Peers          int    `json:"peers"`
	FramesReceived uint64 `json:"frames_received"`
	FramesRejected uint64 `json:"frames_rejected"`
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats() Stats {
	return Stats{
		Peers:          r.PeerCount(),
		FramesReceived: r.framesReceived.Load(),
		FramesRejected: r.framesRejected.Load(),
	}
}

// Close closes every peer connection.
func (r *Receiver) Close() error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.remove(id)
	}
	return nil
}

type offerRequest struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// RegisterRoutes registers the signalling endpoints on api.
func (r *Receiver) RegisterRoutes(api fiber.Router) {
	api.Post("/rtc/offer", func(c *fiber.Ctx) error {
		var req offerRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if req.Type != "offer" || req.SDP == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expected an SDP offer"})
		}

		id, answer, err := r.HandleOffer(c.UserContext(), webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  req.SDP,
		})
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		return c.JSON(fiber.Map{
			"id":   id,
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		})
	})

	api.Delete("/rtc/:id", func(c *fiber.Ctx) error {
		if err := r.ClosePeer(c.Params("id")); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "closed"})
	})

	api.Get("/rtc/stats", func(c *fiber.Ctx) error {
		return c.JSON(r.GetStats())
	})
}
