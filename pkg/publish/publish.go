// Package publish forwards analysis results to external consumers.
package publish

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lilin454/setcam-bot/internal/log"
	"github.com/lilin454/setcam-bot/pkg/analysis"
)

// DefaultSubject is the NATS subject results are published on.
const DefaultSubject = "setcam.results"

// Publisher delivers results somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, res *analysis.Result) error
	Close() error
}

// Nop discards every result. Used when no broker is configured.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, *analysis.Result) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// NATS publishes each result as a protocol "result" envelope.
type NATS struct {
	conn    *nats.Conn
	subject string

	published atomic.Uint64
	failed    atomic.Uint64
}

// DialNATS connects to url and publishes on subject (DefaultSubject if
// empty). The connection reconnects forever in the background.
func DialNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("setcam"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return NewNATS(conn, subject), nil
}

// NewNATS wraps an existing connection.
func NewNATS(conn *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, subject: subject}
}

// Subject returns the subject results go to.
func (n *NATS) Subject() string {
	return n.subject
}

// Publish sends res. It does not wait for the server to acknowledge.
func (n *NATS) Publish(ctx context.Context, res *analysis.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(res)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.failed.Add(1)
		return fmt.Errorf("publish result: %w", err)
	}
	n.published.Add(1)
	return nil
}

// Published returns the number of results handed to the connection.
func (n *NATS) Published() uint64 {
	return n.published.Load()
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

// Encode serializes a result the way it goes on the wire.
func Encode(res *analysis.Result) ([]byte, error) {
	msg, err := res.Message()
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return msg.Bytes()
}
