package negotiation

import (
	"go.uber.org/zap"
)

// ConsensusOutcome classifies the result of a voting round.
type ConsensusOutcome string

const (
	// OutcomeUnanimous means every responding agent chose the same option
	// and the quorum policy is satisfied: the resolution auto-applies.
	OutcomeUnanimous ConsensusOutcome = "unanimous"
	// OutcomeSplit means responding agents chose two or more distinct
	// options. Ties are never broken automatically; the conflict escalates.
	OutcomeSplit ConsensusOutcome = "split"
	// OutcomeNoQuorum means the responders agreed but too few agents
	// responded for auto-resolution under the configured policy.
	OutcomeNoQuorum ConsensusOutcome = "no_quorum"
	// OutcomeNoVotes means no agent responded at all; the attempt fails.
	OutcomeNoVotes ConsensusOutcome = "no_votes"
)

// ConsensusPolicy is the explicit quorum configuration. With
// RequireFullQuorum set (the default), every agent in AgentsInvolved must
// cast a vote for auto-resolution; a lone responder among absent peers
// escalates instead of deciding for everyone.
type ConsensusPolicy struct {
	RequireFullQuorum bool `json:"require_full_quorum" yaml:"require_full_quorum"`
}

// DefaultConsensusPolicy returns the default policy: full quorum required.
func DefaultConsensusPolicy() ConsensusPolicy {
	return ConsensusPolicy{RequireFullQuorum: true}
}

// ConsensusResult is the evaluated outcome of one voting round.
type ConsensusResult struct {
	Outcome         ConsensusOutcome `json:"outcome"`
	WinningOptionID string           `json:"winning_option_id,omitempty"`
	Votes           []AgentVote      `json:"votes"`
	NonVoters       []string         `json:"non_voters,omitempty"`
}

// Evaluator applies the consensus rule — strict unanimity among responding
// agents — plus the quorum policy.
type Evaluator struct {
	policy ConsensusPolicy
	logger *zap.Logger
}

// NewEvaluator creates a consensus evaluator.
func NewEvaluator(policy ConsensusPolicy, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		policy: policy,
		logger: logger.With(zap.String("component", "consensus_evaluator")),
	}
}

// Evaluate decides the round. involved is the conflict's full participant
// set; votes holds one entry per agent that responded.
func (e *Evaluator) Evaluate(involved []string, votes []AgentVote) ConsensusResult {
	result := ConsensusResult{Votes: votes}

	voted := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		voted[v.AgentID] = struct{}{}
	}
	for _, id := range involved {
		if _, ok := voted[id]; !ok {
			result.NonVoters = append(result.NonVoters, id)
		}
	}

	if len(votes) == 0 {
		result.Outcome = OutcomeNoVotes
		return result
	}

	chosen := votes[0].OptionID
	for _, v := range votes[1:] {
		if v.OptionID != chosen {
			result.Outcome = OutcomeSplit
			e.logger.Info("split vote",
				zap.Int("votes", len(votes)),
				zap.Int("non_voters", len(result.NonVoters)),
			)
			return result
		}
	}

	if e.policy.RequireFullQuorum && len(result.NonVoters) > 0 {
		result.Outcome = OutcomeNoQuorum
		result.WinningOptionID = chosen
		return result
	}

	result.Outcome = OutcomeUnanimous
	result.WinningOptionID = chosen
	return result
}
