package negotiation

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VoteCollector fans out evaluate-proposal calls to every involved agent —
// including agents that did not respond during constraint collection, who
// get polled again — and joins the responses. A vote that names an unknown
// option id is malformed and counts as a non-response.
type VoteCollector struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewVoteCollector creates a collector with the given per-call timeout.
func NewVoteCollector(timeout time.Duration, logger *zap.Logger) *VoteCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoteCollector{
		timeout: timeout,
		logger:  logger.With(zap.String("component", "vote_collector")),
	}
}

// VoteRound is the outcome of one voting phase.
type VoteRound struct {
	Votes         []AgentVote `json:"votes"`
	NonResponders []string    `json:"non_responders,omitempty"`
}

// Collect gathers at most one vote per involved agent. It never fails;
// the consensus evaluator decides what an empty round means.
func (vc *VoteCollector) Collect(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, registry *Registry, options []ResolutionOption) *VoteRound {
	known := make(map[string]struct{}, len(options))
	for _, opt := range options {
		known[opt.OptionID] = struct{}{}
	}

	round := &VoteRound{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, agentID := range conflict.AgentsInvolved {
		agentID := agentID
		g.Go(func() error {
			vote := vc.collectOne(gctx, conflictCtx, conflict, registry, agentID, options, known)
			mu.Lock()
			if vote != nil {
				round.Votes = append(round.Votes, *vote)
			} else {
				round.NonResponders = append(round.NonResponders, agentID)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Stable ordering keeps logs and consensus evaluation deterministic
	// regardless of goroutine completion order.
	sort.Slice(round.Votes, func(i, j int) bool { return round.Votes[i].AgentID < round.Votes[j].AgentID })
	sort.Strings(round.NonResponders)
	return round
}

func (vc *VoteCollector) collectOne(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, registry *Registry, agentID string, options []ResolutionOption, known map[string]struct{}) *AgentVote {
	agent, err := registry.Lookup(agentID)
	if err != nil {
		vc.logger.Warn("agent not registered at voting stage",
			zap.String("conflict_id", conflict.ID),
			zap.String("agent_id", agentID),
		)
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, vc.timeout)
	defer cancel()

	vote, err := agent.EvaluateProposals(callCtx, conflictCtx, options)
	if err != nil {
		vc.logger.Warn("vote call failed",
			zap.String("conflict_id", conflict.ID),
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
		return nil
	}
	if vote == nil {
		return nil
	}
	if _, ok := known[vote.OptionID]; !ok {
		vc.logger.Warn("malformed vote, unknown option id",
			zap.String("conflict_id", conflict.ID),
			zap.String("agent_id", agentID),
			zap.String("option_id", vote.OptionID),
		)
		return nil
	}

	vote.AgentID = agentID
	return vote
}
