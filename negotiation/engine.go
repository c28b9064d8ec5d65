package negotiation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/accordhq/accord/audit"
	"github.com/accordhq/accord/execution"
	"github.com/accordhq/accord/internal/metrics"
	"github.com/accordhq/accord/types"
)

// EngineConfig bundles the orchestrator and scheduler configuration.
type EngineConfig struct {
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Scheduler    execution.Config   `json:"scheduler" yaml:"scheduler"`
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Orchestrator: DefaultOrchestratorConfig(),
		Scheduler:    execution.DefaultConfig(),
	}
}

// Engine is the top-level facade: conflict intake, asynchronous negotiation
// via the scheduler, status queries, and external re-open of stuck conflicts.
type Engine struct {
	store        ConflictStore
	orchestrator *Orchestrator
	scheduler    *execution.Scheduler
	metrics      *metrics.Collector
	logger       *zap.Logger
}

// NewEngine wires an orchestrator and scheduler around the given store and
// agent registry. effector, generator, notifier, and sink may be nil; the
// orchestrator substitutes safe defaults.
func NewEngine(config EngineConfig, store ConflictStore, registry *Registry, effector SideEffector, generator ProposalGenerator, notifier Notifier, sink audit.Sink, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	orchestrator := NewOrchestrator(config.Orchestrator, store, registry, effector, generator, notifier, sink, collector, logger)
	scheduler := execution.NewScheduler(config.Scheduler, orchestrator, collector, logger)

	return &Engine{
		store:        store,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		metrics:      collector,
		logger:       logger.With(zap.String("component", "engine")),
	}
}

// Start launches the scheduler worker pool.
func (e *Engine) Start() {
	e.scheduler.Start()
	e.logger.Info("engine started")
}

// Close drains the scheduler. Running attempts are cancelled.
func (e *Engine) Close(ctx context.Context) error {
	return e.scheduler.Close(ctx)
}

// CreateConflict registers a detected conflict and immediately enqueues it
// for negotiation. The returned handle completes when negotiation reaches a
// terminal outcome for this admission.
func (e *Engine) CreateConflict(ctx context.Context, typ ConflictType, severity Severity, description string, agents []string, positions map[string]string) (*Conflict, *execution.Handle, error) {
	conflict, err := NewConflict(typ, severity, description, agents, positions)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.Create(ctx, conflict); err != nil {
		return nil, nil, err
	}
	e.metrics.RecordConflictCreated()
	e.logger.Info("conflict created",
		zap.String("conflict_id", conflict.ID),
		zap.String("type", string(conflict.Type)),
		zap.String("severity", string(conflict.Severity)),
		zap.Strings("agents", conflict.AgentsInvolved),
	)

	handle, err := e.scheduler.Enqueue(conflict.ID)
	if err != nil {
		return conflict, nil, err
	}
	return conflict, handle, nil
}

// Negotiate enqueues an existing conflict for negotiation. For a conflict
// already in a terminal state the returned handle is already completed;
// enqueueing a conflict whose negotiation is in flight returns the existing
// handle.
func (e *Engine) Negotiate(ctx context.Context, conflictID string) (*execution.Handle, error) {
	if e.scheduler.InFlight(conflictID) {
		return e.scheduler.Enqueue(conflictID)
	}

	conflict, err := e.store.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status.Terminal() {
		return execution.CompletedHandle(conflictID), nil
	}
	return e.scheduler.Enqueue(conflictID)
}

// Get returns the current state of a conflict.
func (e *Engine) Get(ctx context.Context, conflictID string) (*Conflict, error) {
	return e.store.Get(ctx, conflictID)
}

// Status returns the current status of a conflict.
func (e *Engine) Status(ctx context.Context, conflictID string) (Status, error) {
	conflict, err := e.store.Get(ctx, conflictID)
	if err != nil {
		return "", err
	}
	return conflict.Status, nil
}

// List returns conflicts, optionally filtered by status ("" for all).
func (e *Engine) List(ctx context.Context, status Status) ([]*Conflict, error) {
	return e.store.List(ctx, status)
}

// Reopen resets an escalated or failed conflict to detected and enqueues a
// fresh negotiation. This is the external re-open path for conflicts whose
// underlying situation changed after escalation or failure.
func (e *Engine) Reopen(ctx context.Context, conflictID, reason string) (*execution.Handle, error) {
	if e.scheduler.InFlight(conflictID) {
		return nil, types.NewError(types.ErrConflictInFlight,
			fmt.Sprintf("conflict %s is already being negotiated", conflictID))
	}

	_, err := e.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		if err := c.Transition(StatusDetected, ActorExternal, "", map[string]any{
			"reason": reason,
		}); err != nil {
			return err
		}
		c.AppendLog(ActorExternal, ActionReopened, "", map[string]any{
			"reason": reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("conflict reopened",
		zap.String("conflict_id", conflictID),
		zap.String("reason", reason),
	)
	return e.scheduler.Enqueue(conflictID)
}

// Resolve marks an escalated conflict as resolved by a human.
func (e *Engine) Resolve(ctx context.Context, conflictID, resolvedBy, resolution string) (*Conflict, error) {
	conflict, err := e.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		return c.Transition(StatusResolved, ActorExternal, "", map[string]any{
			"resolved_by": resolvedBy,
			"resolution":  resolution,
		})
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("conflict resolved by human",
		zap.String("conflict_id", conflictID),
		zap.String("resolved_by", resolvedBy),
	)
	return conflict, nil
}
