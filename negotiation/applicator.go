package negotiation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/accordhq/accord/types"
)

// SideEffector executes the real-world effects of a winning resolution
// (rescheduling, reallocating budget, freeing a VIP slot). Implementations
// are injected by the surrounding system; they run inside the same store
// transaction as the status transition, so effects are applied exactly once
// and only when the conflict is still negotiating.
type SideEffector interface {
	Execute(ctx context.Context, conflict *Conflict, option ResolutionOption) error
}

// NoopSideEffector applies nothing. Used when the surrounding system reacts
// to the resolution log instead of a direct hook.
type NoopSideEffector struct{}

// Execute implements SideEffector.
func (NoopSideEffector) Execute(context.Context, *Conflict, ResolutionOption) error { return nil }

// errConflictNotNegotiating aborts an apply without failing the attempt:
// someone (a human, or external tooling) resolved the conflict while the
// attempt was in flight, and last-writer-wins would be unsafe.
var errConflictNotNegotiating = errors.New("conflict no longer negotiating")

// Applicator commits a unanimous resolution: side effects, status
// transition, resolved timestamp, and the log entry all land in one store
// transaction or not at all.
type Applicator struct {
	store    ConflictStore
	effector SideEffector
	logger   *zap.Logger
}

// NewApplicator creates a resolution applicator. A nil effector defaults to
// NoopSideEffector.
func NewApplicator(store ConflictStore, effector SideEffector, logger *zap.Logger) *Applicator {
	if effector == nil {
		effector = NoopSideEffector{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applicator{
		store:    store,
		effector: effector,
		logger:   logger.With(zap.String("component", "resolution_applicator")),
	}
}

// Apply commits the winning option. Returns (applied=false, nil) when the
// conflict was resolved externally before commit; the attempt then ends
// without applying its own resolution. A commit failure returns a retryable
// types.ErrPersistence and leaves the conflict negotiating.
func (a *Applicator) Apply(ctx context.Context, conflictID, attemptID string, winning ResolutionOption, votes []AgentVote) (applied bool, err error) {
	_, err = a.store.Mutate(ctx, conflictID, func(c *Conflict) error {
		// Check-then-commit inside the transaction: abort if someone else
		// already moved the conflict out of negotiating.
		if c.Status != StatusNegotiating {
			return errConflictNotNegotiating
		}

		if execErr := a.effector.Execute(ctx, c, winning); execErr != nil {
			return types.NewError(types.ErrPersistence, "resolution side effects failed").
				WithCause(execErr).
				WithRetryable(true)
		}

		voteLog := make([]map[string]any, 0, len(votes))
		for _, v := range votes {
			voteLog = append(voteLog, map[string]any{
				"agent_id":  v.AgentID,
				"option_id": v.OptionID,
				"rationale": v.Rationale,
			})
		}
		c.AppendLog(ActorApplicator, ActionResolutionApplied, attemptID, map[string]any{
			"winning_option": map[string]any{
				"option_id":          winning.OptionID,
				"action_description": winning.ActionDescription,
				"parameters":         winning.Parameters,
			},
			"votes": voteLog,
		})
		return c.Transition(StatusAutoResolved, ActorApplicator, attemptID, map[string]any{
			"winning_option_id": winning.OptionID,
		})
	})

	if err != nil {
		if errors.Is(err, errConflictNotNegotiating) {
			a.logger.Info("apply aborted, conflict resolved externally",
				zap.String("conflict_id", conflictID),
				zap.String("attempt_id", attemptID),
			)
			return false, nil
		}
		if types.GetErrorCode(err) == "" {
			err = types.NewError(types.ErrPersistence, "resolution commit failed").
				WithCause(err).
				WithRetryable(true)
		}
		return false, err
	}

	a.logger.Info("resolution applied",
		zap.String("conflict_id", conflictID),
		zap.String("attempt_id", attemptID),
		zap.String("winning_option_id", winning.OptionID),
	)
	return true, nil
}
