package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// subjectPrefix roots every published subject; the event type is appended
// lowercased, e.g. hivetrap.events.session_completed.
const subjectPrefix = "hivetrap.events."

// NATSSink publishes events to a NATS broker for downstream consumers
// (intel aggregation, analyst dashboards).
type NATSSink struct {
	conn *nats.Conn
}

var _ Sink = (*NATSSink)(nil)

// NewNATSSink connects to the broker at url. Connection drops reconnect
// in the background; publishes during an outage buffer in the client.
func NewNATSSink(url string, log *zap.Logger) (*NATSSink, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSSink{conn: nc}, nil
}

// Emit publishes the event as JSON on its type-derived subject.
func (s *NATSSink) Emit(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := subjectPrefix + strings.ToLower(string(ev.Type))
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
