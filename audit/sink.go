// Package audit provides the append-only audit trail of the negotiation
// engine. Every state transition and resolution-log event is mirrored to a
// Sink, keyed by conflict id and attempt id, so operators can reconstruct
// what the engine did even after conflicts reach a terminal state.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one audit record. Events are never updated or deleted.
type Event struct {
	ConflictID string         `json:"conflict_id"`
	AttemptID  string         `json:"attempt_id,omitempty"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use from all workers.
type Sink interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// MemorySink keeps events in memory, grouped by conflict id. Suitable for
// development and tests.
type MemorySink struct {
	mu     sync.RWMutex
	events map[string][]Event
	closed bool
}

// NewMemorySink creates an in-memory audit sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: make(map[string][]Event)}
}

// Record implements Sink.
func (s *MemorySink) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.events[event.ConflictID] = append(s.events[event.ConflictID], event)
	return nil
}

// ByConflict returns all recorded events for a conflict in append order.
func (s *MemorySink) ByConflict(conflictID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events[conflictID]...)
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ZapSink writes audit events to the structured log.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a log-backed audit sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.With(zap.String("component", "audit"))}
}

// Record implements Sink.
func (s *ZapSink) Record(_ context.Context, event Event) error {
	s.logger.Info("audit",
		zap.String("conflict_id", event.ConflictID),
		zap.String("attempt_id", event.AttemptID),
		zap.String("actor", event.Actor),
		zap.String("action", event.Action),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// Close implements Sink.
func (s *ZapSink) Close() error { return nil }
