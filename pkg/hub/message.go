// Package hub fans protocol messages out to dashboard websocket clients.
// One goroutine owns the client set; producers only ever send on channels.
package hub

// MessageType indicates the websocket frame type a message is written as.
type MessageType int

const (
	// JSONMessage is written as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is written as a binary frame.
	BinaryMessage
)

// Message is one pre-encoded payload queued for a client.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}
