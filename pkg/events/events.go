// Package events fans out notable session moments to configured sinks:
// structured logs always, NATS when a broker is configured, and the
// final-report webhook when a session completes.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Type names an event.
type Type string

const (
	// IntelExtracted fires when a turn yields new intelligence items.
	IntelExtracted Type = "INTEL_EXTRACTED"
	// ScammerAggressive fires when escalation signals trip on a turn.
	ScammerAggressive Type = "SCAMMER_AGGRESSIVE"
	// SessionCompleted fires exactly once, when a session terminates.
	SessionCompleted Type = "SESSION_COMPLETED"
)

// Event is one emitted record.
type Event struct {
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id"`
	Turn      int            `json:"turn"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink receives events. Emit must not block the caller's hot path for
// long; sinks that do network I/O handle their own timeouts.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// LogSink writes events to the structured logger. Always on.
type LogSink struct {
	log *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a sink over the given logger.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit logs the event with its fields flattened.
func (s *LogSink) Emit(_ context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("session_id", ev.SessionID),
		zap.Int("turn", ev.Turn),
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	s.log.Info("session event", fields...)
	return nil
}

// Close is a no-op; the logger is owned by the caller.
func (s *LogSink) Close() error {
	return nil
}

// MultiSink fans one event out to several sinks. A failing sink does not
// stop the others; the first error is returned.
type MultiSink struct {
	sinks []Sink
}

var _ Sink = (*MultiSink)(nil)

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit delivers to every sink.
func (m *MultiSink) Emit(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
