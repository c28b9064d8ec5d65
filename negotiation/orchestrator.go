package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/accordhq/accord/audit"
	"github.com/accordhq/accord/internal/metrics"
	"github.com/accordhq/accord/types"
)

// AttemptOutcome classifies how one negotiation attempt ended.
type AttemptOutcome string

const (
	// AttemptResolved means unanimity was reached and the resolution applied.
	AttemptResolved AttemptOutcome = "auto_resolved"
	// AttemptEscalated means the conflict was handed to a human.
	AttemptEscalated AttemptOutcome = "escalated"
	// AttemptSkipped means the conflict was already terminal; nothing ran.
	AttemptSkipped AttemptOutcome = "skipped"
	// AttemptAborted means the conflict was resolved externally while the
	// attempt was in flight; the attempt committed nothing.
	AttemptAborted AttemptOutcome = "aborted"
)

// AttemptResult is the outcome of one full negotiation sequence.
type AttemptResult struct {
	AttemptID     string            `json:"attempt_id"`
	ConflictID    string            `json:"conflict_id"`
	Attempt       int               `json:"attempt"`
	Outcome       AttemptOutcome    `json:"outcome"`
	WinningOption *ResolutionOption `json:"winning_option,omitempty"`
	Votes         []AgentVote       `json:"votes,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

// OrchestratorConfig configures one orchestrator.
type OrchestratorConfig struct {
	// AgentCallTimeout bounds every declare-constraints and
	// evaluate-proposal call. An agent past the deadline is treated as
	// non-responding for the current phase.
	AgentCallTimeout time.Duration `json:"agent_call_timeout" yaml:"agent_call_timeout"`

	// Consensus is the quorum policy applied on top of strict unanimity.
	Consensus ConsensusPolicy `json:"consensus" yaml:"consensus"`
}

// DefaultOrchestratorConfig returns the default configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		AgentCallTimeout: 30 * time.Second,
		Consensus:        DefaultConsensusPolicy(),
	}
}

// Orchestrator drives the end-to-end negotiation sequence for one conflict:
// constraints, proposals, votes, then apply-or-escalate. It owns the
// conflict state machine together with the applicator; nothing else
// transitions conflicts.
type Orchestrator struct {
	config     OrchestratorConfig
	store      ConflictStore
	registry   *Registry
	generator  ProposalGenerator
	collector  *ConstraintCollector
	voter      *VoteCollector
	evaluator  *Evaluator
	applicator *Applicator
	notifier   Notifier
	sink       audit.Sink
	metrics    *metrics.Collector
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewOrchestrator wires the negotiation pipeline. generator, notifier, sink
// and collector may be nil: defaults are the heuristic generator, a log
// notifier, no audit mirroring, and no metrics.
func NewOrchestrator(config OrchestratorConfig, store ConflictStore, registry *Registry, effector SideEffector, generator ProposalGenerator, notifier Notifier, sink audit.Sink, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if generator == nil {
		generator = NewHeuristicGenerator(logger)
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Orchestrator{
		config:     config,
		store:      store,
		registry:   registry,
		generator:  generator,
		collector:  NewConstraintCollector(config.AgentCallTimeout, logger),
		voter:      NewVoteCollector(config.AgentCallTimeout, logger),
		evaluator:  NewEvaluator(config.Consensus, logger),
		applicator: NewApplicator(store, effector, logger),
		notifier:   notifier,
		sink:       sink,
		metrics:    collector,
		tracer:     otel.Tracer("accord/negotiation"),
		logger:     logger.With(zap.String("component", "orchestrator")),
	}
}

// RunAttempt runs one negotiation attempt and reports only the error, for
// the scheduler. Retryable failures carry types.Error with Retryable set.
func (o *Orchestrator) RunAttempt(ctx context.Context, conflictID string, attempt int) error {
	_, err := o.Run(ctx, conflictID, attempt)
	return err
}

// Run executes the full sequence for one attempt.
func (o *Orchestrator) Run(ctx context.Context, conflictID string, attempt int) (*AttemptResult, error) {
	start := time.Now()
	attemptID := uuid.New().String()

	ctx, span := o.tracer.Start(ctx, "negotiation.attempt",
		trace.WithAttributes(
			attribute.String("conflict.id", conflictID),
			attribute.String("attempt.id", attemptID),
			attribute.Int("attempt.number", attempt),
		))
	defer span.End()

	logger := o.logger.With(
		zap.String("conflict_id", conflictID),
		zap.String("attempt_id", attemptID),
		zap.Int("attempt", attempt),
	)

	result := &AttemptResult{AttemptID: attemptID, ConflictID: conflictID, Attempt: attempt}
	finish := func(outcome AttemptOutcome) *AttemptResult {
		result.Outcome = outcome
		result.Duration = time.Since(start)
		o.metrics.RecordAttempt(string(outcome), result.Duration)
		return result
	}

	conflict, err := o.begin(ctx, conflictID, attemptID, attempt)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		logger.Info("conflict already terminal, attempt skipped")
		return finish(AttemptSkipped), nil
	}

	conflictCtx := &ConflictContext{
		ConflictID:  conflict.ID,
		AttemptID:   attemptID,
		Type:        conflict.Type,
		Severity:    conflict.Severity,
		Description: conflict.Description,
		Positions:   conflict.ConflictingPositions,
	}

	// Phase 1: constraints
	constraints, err := o.collectConstraints(ctx, conflictCtx, conflict)
	if err != nil {
		o.recordAttemptFailure(ctx, conflict.ID, attemptID, err)
		o.metrics.RecordAttempt("failed", time.Since(start))
		return nil, err
	}

	// Phase 2: proposals
	options, err := o.generateProposals(ctx, conflictCtx, conflict, constraints)
	if err != nil {
		o.recordAttemptFailure(ctx, conflict.ID, attemptID, err)
		o.metrics.RecordAttempt("failed", time.Since(start))
		return nil, err
	}
	if len(options) < 2 {
		logger.Info("insufficient proposal options, escalating",
			zap.Int("options", len(options)),
		)
		if err := o.escalate(ctx, conflict.ID, attemptID, ReasonInsufficientOptions, nil); err != nil {
			return nil, err
		}
		return finish(AttemptEscalated), nil
	}

	// Phase 3: votes
	round, err := o.collectVotes(ctx, conflictCtx, conflict, options)
	if err != nil {
		o.recordAttemptFailure(ctx, conflict.ID, attemptID, err)
		o.metrics.RecordAttempt("failed", time.Since(start))
		return nil, err
	}
	result.Votes = round.Votes

	// Phase 4: consensus, then apply or escalate
	consensus := o.evaluator.Evaluate(conflict.AgentsInvolved, round.Votes)
	switch consensus.Outcome {
	case OutcomeNoVotes:
		err := types.NewError(types.ErrNoRespondingAgents,
			"no agent responded during voting for conflict "+conflict.ID).
			WithRetryable(true)
		o.recordAttemptFailure(ctx, conflict.ID, attemptID, err)
		o.metrics.RecordAttempt("failed", time.Since(start))
		return nil, err

	case OutcomeUnanimous:
		winning, ok := findOption(options, consensus.WinningOptionID)
		if !ok {
			// Votes were validated against the option set; reaching here
			// means the option list changed mid-attempt.
			err := types.NewError(types.ErrMalformedResponse,
				"winning option missing from attempt option set")
			o.recordAttemptFailure(ctx, conflict.ID, attemptID, err)
			o.metrics.RecordAttempt("failed", time.Since(start))
			return nil, err
		}
		applied, err := o.applyResolution(ctx, conflict.ID, attemptID, winning, consensus.Votes)
		if err != nil {
			o.metrics.RecordAttempt("failed", time.Since(start))
			return nil, err
		}
		if !applied {
			return finish(AttemptAborted), nil
		}
		result.WinningOption = &winning
		logger.Info("negotiation auto-resolved",
			zap.String("winning_option_id", winning.OptionID),
			zap.Int("votes", len(consensus.Votes)),
		)
		return finish(AttemptResolved), nil

	case OutcomeNoQuorum:
		logger.Info("responders agreed but quorum not met, escalating",
			zap.Int("votes", len(consensus.Votes)),
			zap.Strings("non_voters", consensus.NonVoters),
		)
		if err := o.escalate(ctx, conflict.ID, attemptID, ReasonNoQuorum, consensus.Votes); err != nil {
			return nil, err
		}
		return finish(AttemptEscalated), nil

	default: // OutcomeSplit
		logger.Info("split vote, escalating",
			zap.Int("votes", len(consensus.Votes)),
		)
		if err := o.escalate(ctx, conflict.ID, attemptID, ReasonSplitVote, consensus.Votes); err != nil {
			return nil, err
		}
		return finish(AttemptEscalated), nil
	}
}

// begin loads the conflict and moves it into negotiating. Returns (nil, nil)
// when the conflict is terminal and the attempt should be skipped.
func (o *Orchestrator) begin(ctx context.Context, conflictID, attemptID string, attempt int) (*Conflict, error) {
	current, err := o.store.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, nil
	}

	conflict, err := o.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		if c.Status.Terminal() {
			return errConflictNotNegotiating
		}
		if c.Status == StatusDetected {
			if err := c.Transition(StatusNegotiating, ActorOrchestrator, attemptID, nil); err != nil {
				return err
			}
		}
		c.AppendLog(ActorOrchestrator, ActionAttemptStarted, attemptID, map[string]any{
			"attempt": attempt,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, errConflictNotNegotiating) {
			return nil, nil
		}
		return nil, err
	}

	o.recordAudit(ctx, conflictID, attemptID, ActorOrchestrator, ActionAttemptStarted, map[string]any{
		"attempt": attempt,
		"status":  string(conflict.Status),
	})
	return conflict, nil
}

func (o *Orchestrator) collectConstraints(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict) (*ConstraintSet, error) {
	ctx, span := o.tracer.Start(ctx, "negotiation.constraints")
	defer span.End()

	set, err := o.collector.Collect(ctx, conflictCtx, conflict, o.registry)
	for _, rec := range setRecords(set) {
		status := "ok"
		if !rec.Responded {
			status = "non_responding"
		}
		o.metrics.RecordAgentCall("constraints", status)
	}
	if err != nil {
		return nil, err
	}

	priorities := make(map[string]any, len(set.Records))
	for id, rec := range set.Records {
		priorities[id] = rec.Priority
	}
	payload := map[string]any{
		"priorities": priorities,
		"responding": set.RespondingCount(),
	}
	if len(set.NonResponders) > 0 {
		payload["non_responders"] = set.NonResponders
	}
	if _, err := o.appendLog(ctx, conflict.ID, conflictCtx.AttemptID, ActionConstraintsCollected, payload); err != nil {
		return nil, err
	}
	return set, nil
}

func (o *Orchestrator) generateProposals(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, constraints *ConstraintSet) ([]ResolutionOption, error) {
	ctx, span := o.tracer.Start(ctx, "negotiation.proposals")
	defer span.End()

	raw, err := o.generator.Generate(ctx, conflictCtx, conflict, constraints)
	if err != nil {
		return nil, types.NewError(types.ErrInsufficientOptions, "proposal generation failed").
			WithCause(err)
	}
	options := ValidateOptions(raw)

	descs := make([]any, 0, len(options))
	for _, opt := range options {
		descs = append(descs, map[string]any{
			"option_id":          opt.OptionID,
			"action_description": opt.ActionDescription,
		})
	}
	if _, err := o.appendLog(ctx, conflict.ID, conflictCtx.AttemptID, ActionProposalsGenerated, map[string]any{
		"options": descs,
	}); err != nil {
		return nil, err
	}
	return options, nil
}

func (o *Orchestrator) collectVotes(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, options []ResolutionOption) (*VoteRound, error) {
	ctx, span := o.tracer.Start(ctx, "negotiation.voting")
	defer span.End()

	round := o.voter.Collect(ctx, conflictCtx, conflict, o.registry, options)
	for range round.Votes {
		o.metrics.RecordAgentCall("voting", "ok")
	}
	for range round.NonResponders {
		o.metrics.RecordAgentCall("voting", "non_responding")
	}

	voteLog := make([]any, 0, len(round.Votes))
	for _, v := range round.Votes {
		voteLog = append(voteLog, map[string]any{
			"agent_id":  v.AgentID,
			"option_id": v.OptionID,
			"rationale": v.Rationale,
		})
	}
	payload := map[string]any{"votes": voteLog}
	if len(round.NonResponders) > 0 {
		payload["non_responders"] = round.NonResponders
	}
	if _, err := o.appendLog(ctx, conflict.ID, conflictCtx.AttemptID, ActionVotesCollected, payload); err != nil {
		return nil, err
	}
	return round, nil
}

func (o *Orchestrator) applyResolution(ctx context.Context, conflictID, attemptID string, winning ResolutionOption, votes []AgentVote) (bool, error) {
	ctx, span := o.tracer.Start(ctx, "negotiation.apply")
	defer span.End()

	applied, err := o.applicator.Apply(ctx, conflictID, attemptID, winning, votes)
	if err != nil {
		return false, err
	}
	if applied {
		o.recordAudit(ctx, conflictID, attemptID, ActorApplicator, ActionResolutionApplied, map[string]any{
			"winning_option_id": winning.OptionID,
		})
	}
	return applied, nil
}

// escalate hands the conflict to human review: log entry with every vote and
// rationale, terminal status, outbound notification.
func (o *Orchestrator) escalate(ctx context.Context, conflictID, attemptID string, reason EscalationReason, votes []AgentVote) error {
	voteLog := make([]any, 0, len(votes))
	for _, v := range votes {
		voteLog = append(voteLog, map[string]any{
			"agent_id":  v.AgentID,
			"option_id": v.OptionID,
			"rationale": v.Rationale,
		})
	}

	_, err := o.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		if c.Status != StatusNegotiating {
			return errConflictNotNegotiating
		}
		c.AppendLog(ActorOrchestrator, ActionEscalated, attemptID, map[string]any{
			"reason": string(reason),
			"votes":  voteLog,
		})
		return c.Transition(StatusEscalated, ActorOrchestrator, attemptID, map[string]any{
			"reason": string(reason),
		})
	})
	if err != nil {
		if errors.Is(err, errConflictNotNegotiating) {
			return nil
		}
		return err
	}

	o.metrics.RecordEscalation(string(reason))
	o.recordAudit(ctx, conflictID, attemptID, ActorOrchestrator, ActionEscalated, map[string]any{
		"reason": string(reason),
	})

	event := EscalationEvent{
		ConflictID: conflictID,
		AttemptID:  attemptID,
		Reason:     reason,
		Votes:      votes,
		Timestamp:  time.Now().UTC(),
	}
	if err := o.notifier.Notify(ctx, event); err != nil {
		// The escalation is already persisted; a broken review surface must
		// not fail the attempt.
		o.logger.Error("escalation notification failed",
			zap.String("conflict_id", conflictID),
			zap.Error(err),
		)
	}
	return nil
}

// MarkFailed transitions a conflict to failed after the scheduler exhausts
// its retry budget. The conflict is kept for manual re-trigger, never
// dropped.
func (o *Orchestrator) MarkFailed(ctx context.Context, conflictID string, cause error) error {
	_, err := o.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		if c.Status.Terminal() {
			return errConflictNotNegotiating
		}
		c.AppendLog(ActorScheduler, ActionAttemptFailed, "", map[string]any{
			"error": cause.Error(),
		})
		return c.Transition(StatusFailed, ActorScheduler, "", map[string]any{
			"error": cause.Error(),
		})
	})
	if err != nil {
		if errors.Is(err, errConflictNotNegotiating) {
			return nil
		}
		return err
	}

	o.recordAudit(ctx, conflictID, "", ActorScheduler, ActionAttemptFailed, map[string]any{
		"error": cause.Error(),
	})
	o.logger.Error("conflict failed after retry exhaustion",
		zap.String("conflict_id", conflictID),
		zap.Error(cause),
	)
	return nil
}

// recordAttemptFailure appends a non-terminal failure log entry; the
// scheduler decides whether to retry or mark the conflict failed.
func (o *Orchestrator) recordAttemptFailure(ctx context.Context, conflictID, attemptID string, cause error) {
	if _, err := o.appendLog(ctx, conflictID, attemptID, ActionAttemptFailed, map[string]any{
		"error":     cause.Error(),
		"retryable": types.IsRetryable(cause),
	}); err != nil {
		o.logger.Warn("failed to record attempt failure",
			zap.String("conflict_id", conflictID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) appendLog(ctx context.Context, conflictID, attemptID, action string, payload map[string]any) (*Conflict, error) {
	c, err := o.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		c.AppendLog(ActorOrchestrator, action, attemptID, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.recordAudit(ctx, conflictID, attemptID, ActorOrchestrator, action, payload)
	return c, nil
}

func (o *Orchestrator) recordAudit(ctx context.Context, conflictID, attemptID, actor, action string, payload map[string]any) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Record(ctx, audit.Event{
		ConflictID: conflictID,
		AttemptID:  attemptID,
		Actor:      actor,
		Action:     action,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		o.logger.Warn("audit record failed",
			zap.String("conflict_id", conflictID),
			zap.Error(err),
		)
	}
}

func findOption(options []ResolutionOption, id string) (ResolutionOption, bool) {
	for _, opt := range options {
		if opt.OptionID == id {
			return opt, true
		}
	}
	return ResolutionOption{}, false
}

func setRecords(set *ConstraintSet) map[string]*ConstraintRecord {
	if set == nil {
		return nil
	}
	return set.Records
}
