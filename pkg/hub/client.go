package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/lilin454/setcam-bot/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Dashboards only send small control envelopes.
	maxMessageSize = 4 * 1024

	// sendBuffer is how far a client may fall behind before eviction.
	sendBuffer = 64
)

// Client is one dashboard websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// Handler returns a fiber websocket handler serving h.
func Handler(h *Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		c := &Client{
			hub:  h,
			conn: conn,
			send: make(chan Message, sendBuffer),
		}
		if !h.join(c) {
			conn.Close()
			return
		}
		go c.writeLoop()
		c.readLoop()
	}
}

// offer queues m without blocking and reports whether it fit.
func (c *Client) offer(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// readLoop answers protocol pings and notices disconnects. It returns when
// the connection fails.
func (c *Client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if reply := c.reply(data); reply != nil {
			c.hub.mu.RLock()
			if _, ok := c.hub.clients[c]; ok {
				c.offer(*reply)
			}
			c.hub.mu.RUnlock()
		}
	}
}

// reply builds the answer to a dashboard envelope, or nil.
func (c *Client) reply(data []byte) *Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil || msg.Type != protocol.TypePing {
		return nil
	}
	ping, _ := msg.GetPingData()
	var id string
	if ping != nil {
		id = ping.ID
	}
	pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return nil
	}
	out, err := pong.Bytes()
	if err != nil {
		return nil
	}
	m := NewJSONMessage(out)
	return &m
}

// writeLoop is the only writer on the connection.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			frame := websocket.TextMessage
			if m.Type == BinaryMessage {
				frame = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(frame, m.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
