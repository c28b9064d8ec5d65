package negotiation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/accordhq/accord/types"
)

// ConstraintSet is the outcome of one constraint-collection phase.
type ConstraintSet struct {
	Records       map[string]*ConstraintRecord `json:"records"`
	NonResponders []string                     `json:"non_responders,omitempty"`
}

// RespondingCount returns how many agents answered with a usable constraint.
func (s *ConstraintSet) RespondingCount() int {
	n := 0
	for _, r := range s.Records {
		if r.Responded {
			n++
		}
	}
	return n
}

// ConstraintCollector fans out declare-constraints calls to every involved
// agent and joins the results. Each call is independent, concurrent, and
// bounded by the configured timeout; a failing or slow agent degrades to a
// non-responding default record rather than halting the phase.
type ConstraintCollector struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewConstraintCollector creates a collector with the given per-call timeout.
func NewConstraintCollector(timeout time.Duration, logger *zap.Logger) *ConstraintCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintCollector{
		timeout: timeout,
		logger:  logger.With(zap.String("component", "constraint_collector")),
	}
}

// Collect gathers one constraint record per involved agent. Zero responding
// agents is fatal for the attempt and returns a retryable
// types.ErrNoRespondingAgents.
func (cc *ConstraintCollector) Collect(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, registry *Registry) (*ConstraintSet, error) {
	set := &ConstraintSet{Records: make(map[string]*ConstraintRecord, len(conflict.AgentsInvolved))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, agentID := range conflict.AgentsInvolved {
		agentID := agentID
		g.Go(func() error {
			record := cc.collectOne(gctx, conflictCtx, conflict, registry, agentID)
			mu.Lock()
			set.Records[agentID] = record
			if !record.Responded {
				set.NonResponders = append(set.NonResponders, agentID)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if set.RespondingCount() == 0 {
		return set, types.NewError(types.ErrNoRespondingAgents,
			"no agent responded during constraint collection for conflict "+conflict.ID).
			WithRetryable(true)
	}
	return set, nil
}

// collectOne never fails: timeouts, lookup misses, and malformed replies all
// degrade to a default low-priority non-responding record.
func (cc *ConstraintCollector) collectOne(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, registry *Registry, agentID string) *ConstraintRecord {
	fallback := &ConstraintRecord{
		AgentID:   agentID,
		Priority:  DefaultPriority,
		Responded: false,
	}

	agent, err := registry.Lookup(agentID)
	if err != nil {
		cc.logger.Warn("agent not registered, recording as non-responding",
			zap.String("conflict_id", conflict.ID),
			zap.String("agent_id", agentID),
		)
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, cc.timeout)
	defer cancel()

	record, err := agent.DeclareConstraints(callCtx, conflictCtx, conflict.ConflictingPositions[agentID])
	if err != nil {
		cc.logger.Warn("constraint call failed, recording as non-responding",
			zap.String("conflict_id", conflict.ID),
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return fallback
	}
	if !validConstraint(record, agentID) {
		cc.logger.Warn("malformed constraint reply, recording as non-responding",
			zap.String("conflict_id", conflict.ID),
			zap.String("agent_id", agentID),
		)
		return fallback
	}

	record.Responded = true
	return record
}

// validConstraint checks that a reply parses into a usable constraint:
// right agent id and an in-range priority.
func validConstraint(r *ConstraintRecord, agentID string) bool {
	if r == nil {
		return false
	}
	if r.AgentID != "" && r.AgentID != agentID {
		return false
	}
	if r.AgentID == "" {
		r.AgentID = agentID
	}
	return r.Priority >= MinPriority && r.Priority <= MaxPriority
}
