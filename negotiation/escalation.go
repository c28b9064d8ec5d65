package negotiation

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EscalationReason explains why a conflict was handed to a human.
type EscalationReason string

const (
	ReasonSplitVote           EscalationReason = "split_vote"
	ReasonNoQuorum            EscalationReason = "no_quorum"
	ReasonInsufficientOptions EscalationReason = "insufficient_options"
)

// EscalationEvent is emitted to the human-review surface when the engine
// gives up on automatic resolution. Callers poll or subscribe; escalation
// is a terminal state, not an error thrown through the call stack.
type EscalationEvent struct {
	ConflictID string           `json:"conflict_id"`
	AttemptID  string           `json:"attempt_id"`
	Reason     EscalationReason `json:"reason"`
	Votes      []AgentVote      `json:"votes,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Notifier delivers escalation events to the external review surface.
type Notifier interface {
	Notify(ctx context.Context, event EscalationEvent) error
}

// ChannelNotifier buffers escalation events on a channel for in-process
// subscribers. Delivery is best-effort: when the buffer is full the event is
// dropped with a warning rather than blocking the orchestrator (the
// escalation itself is already persisted on the conflict).
type ChannelNotifier struct {
	events chan EscalationEvent
	logger *zap.Logger
}

// NewChannelNotifier creates a notifier with the given buffer size.
func NewChannelNotifier(buffer int, logger *zap.Logger) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelNotifier{
		events: make(chan EscalationEvent, buffer),
		logger: logger.With(zap.String("component", "escalation_notifier")),
	}
}

// Notify implements Notifier.
func (n *ChannelNotifier) Notify(ctx context.Context, event EscalationEvent) error {
	select {
	case n.events <- event:
	default:
		n.logger.Warn("escalation event buffer full, dropping notification",
			zap.String("conflict_id", event.ConflictID),
			zap.String("attempt_id", event.AttemptID),
		)
	}
	return nil
}

// Events returns the subscription channel.
func (n *ChannelNotifier) Events() <-chan EscalationEvent {
	return n.events
}

// LogNotifier writes escalation events to the structured log. Useful as a
// fallback review surface and in tests.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "escalation_notifier"))}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, event EscalationEvent) error {
	n.logger.Warn("conflict escalated to human review",
		zap.String("conflict_id", event.ConflictID),
		zap.String("attempt_id", event.AttemptID),
		zap.String("reason", string(event.Reason)),
		zap.Int("votes", len(event.Votes)),
	)
	return nil
}

// MultiNotifier fans one event out to several notifiers.
type MultiNotifier []Notifier

// Notify implements Notifier. The first error wins, remaining notifiers
// still run.
func (m MultiNotifier) Notify(ctx context.Context, event EscalationEvent) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
