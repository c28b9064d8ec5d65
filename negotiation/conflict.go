package negotiation

import (
	"time"

	"github.com/google/uuid"

	"github.com/accordhq/accord/types"
)

// ConflictType classifies what the involved agents disagree about.
type ConflictType string

const (
	ConflictScheduleClash      ConflictType = "schedule_clash"
	ConflictResourceConstraint ConflictType = "resource_constraint"
	ConflictVIPAvailability    ConflictType = "vip_availability"
	ConflictBudgetAllocation   ConflictType = "budget_allocation"
	ConflictOther              ConflictType = "other"
)

// Severity indicates how urgent a conflict is for the coordinating humans.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the conflict lifecycle state.
type Status string

const (
	// StatusDetected is the entry state created by upstream detection.
	StatusDetected Status = "detected"
	// StatusNegotiating means an attempt is (or was) running for this conflict.
	StatusNegotiating Status = "negotiating"
	// StatusAutoResolved means agents reached unanimity and the resolution
	// was applied. Terminal success.
	StatusAutoResolved Status = "auto_resolved"
	// StatusEscalated means the conflict was handed to a human. Terminal for
	// the engine; external tooling may re-open by resetting to detected.
	StatusEscalated Status = "escalated"
	// StatusResolved means a human resolved an escalated conflict. Terminal.
	StatusResolved Status = "resolved"
	// StatusFailed means orchestration failed after exhausting retries.
	StatusFailed Status = "failed"
)

// statusTransitions is the legal transition table. Failed is reachable from
// any non-terminal state on unrecoverable orchestration errors; detected is
// reachable from escalated/failed only through an explicit external re-open.
var statusTransitions = map[Status][]Status{
	StatusDetected:     {StatusNegotiating, StatusFailed},
	StatusNegotiating:  {StatusAutoResolved, StatusEscalated, StatusFailed},
	StatusEscalated:    {StatusResolved, StatusDetected},
	StatusFailed:       {StatusDetected},
	StatusAutoResolved: {},
	StatusResolved:     {},
}

// CanTransitionTo reports whether the transition s -> to is legal.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the engine will never act on the conflict again
// without external intervention.
func (s Status) Terminal() bool {
	switch s {
	case StatusAutoResolved, StatusResolved, StatusEscalated, StatusFailed:
		return true
	}
	return false
}

// LogEvent is one entry of a conflict's append-only resolution log.
type LogEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	AttemptID string         `json:"attempt_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Actors recorded in log and audit events.
const (
	ActorOrchestrator = "orchestrator"
	ActorApplicator   = "applicator"
	ActorScheduler    = "scheduler"
	ActorExternal     = "external"
)

// Log actions recorded by the engine.
const (
	ActionStatusChanged        = "status_changed"
	ActionAttemptStarted       = "attempt_started"
	ActionConstraintsCollected = "constraints_collected"
	ActionAgentNonResponding   = "agent_non_responding"
	ActionProposalsGenerated   = "proposals_generated"
	ActionVotesCollected       = "votes_collected"
	ActionResolutionApplied    = "resolution_applied"
	ActionEscalated            = "escalated"
	ActionAttemptFailed        = "attempt_failed"
	ActionReopened             = "reopened"
)

// Conflict is the unit of work: a detected disagreement between two or more
// agents over a shared resource. Created by upstream detection in status
// detected, mutated only by the orchestrator and applicator, never deleted.
type Conflict struct {
	ID                   string            `json:"id"`
	Type                 ConflictType      `json:"conflict_type"`
	Severity             Severity          `json:"severity"`
	Description          string            `json:"description"`
	AgentsInvolved       []string          `json:"agents_involved"`
	ConflictingPositions map[string]string `json:"conflicting_positions"`
	Status               Status            `json:"status"`
	ResolutionLog        []LogEvent        `json:"resolution_log"`
	HumanActionRequired  bool              `json:"human_action_required"`
	DetectedAt           time.Time         `json:"detected_at"`
	ResolvedAt           *time.Time        `json:"resolved_at,omitempty"`
}

// NewConflict creates a conflict in status detected. The involved agent set
// is fixed at creation; negotiation never adds or removes participants.
func NewConflict(typ ConflictType, severity Severity, description string, agents []string, positions map[string]string) (*Conflict, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrInvalidTransition, "conflict requires at least one involved agent")
	}
	seen := make(map[string]struct{}, len(agents))
	ordered := make([]string, 0, len(agents))
	for _, id := range agents {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	if len(ordered) == 0 {
		return nil, types.NewError(types.ErrInvalidTransition, "conflict requires at least one involved agent")
	}

	pos := make(map[string]string, len(positions))
	for k, v := range positions {
		pos[k] = v
	}

	return &Conflict{
		ID:                   uuid.New().String(),
		Type:                 typ,
		Severity:             severity,
		Description:          description,
		AgentsInvolved:       ordered,
		ConflictingPositions: pos,
		Status:               StatusDetected,
		ResolutionLog:        make([]LogEvent, 0, 8),
		DetectedAt:           time.Now().UTC(),
	}, nil
}

// AppendLog appends an event to the resolution log. The log is append-only;
// nothing in the engine removes or rewrites entries.
func (c *Conflict) AppendLog(actor, action, attemptID string, payload map[string]any) {
	c.ResolutionLog = append(c.ResolutionLog, LogEvent{
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		AttemptID: attemptID,
		Payload:   payload,
	})
}

// Transition moves the conflict to a new status, appending a log event.
// Illegal transitions return types.ErrInvalidTransition and leave the
// conflict unchanged.
func (c *Conflict) Transition(to Status, actor, attemptID string, payload map[string]any) error {
	if !c.Status.CanTransitionTo(to) {
		return types.NewError(types.ErrInvalidTransition,
			"cannot transition conflict "+c.ID+" from "+string(c.Status)+" to "+string(to))
	}

	from := c.Status
	c.Status = to

	switch to {
	case StatusAutoResolved, StatusResolved:
		now := time.Now().UTC()
		c.ResolvedAt = &now
	case StatusEscalated:
		c.HumanActionRequired = true
	case StatusDetected:
		// external re-open: conflict goes back onto the queue as fresh work
		c.HumanActionRequired = false
		c.ResolvedAt = nil
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["from"] = string(from)
	payload["to"] = string(to)
	c.AppendLog(actor, ActionStatusChanged, attemptID, payload)
	return nil
}

// Clone returns a deep copy. Stores hand out clones so callers cannot bypass
// Mutate and edit shared state.
func (c *Conflict) Clone() *Conflict {
	cp := *c
	cp.AgentsInvolved = append([]string(nil), c.AgentsInvolved...)
	cp.ConflictingPositions = make(map[string]string, len(c.ConflictingPositions))
	for k, v := range c.ConflictingPositions {
		cp.ConflictingPositions[k] = v
	}
	cp.ResolutionLog = make([]LogEvent, len(c.ResolutionLog))
	for i, ev := range c.ResolutionLog {
		evCopy := ev
		if ev.Payload != nil {
			evCopy.Payload = make(map[string]any, len(ev.Payload))
			for k, v := range ev.Payload {
				evCopy.Payload[k] = v
			}
		}
		cp.ResolutionLog[i] = evCopy
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
