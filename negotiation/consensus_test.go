package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func vote(agent, option string) AgentVote {
	return AgentVote{AgentID: agent, OptionID: option}
}

func TestEvaluateUnanimous(t *testing.T) {
	e := NewEvaluator(DefaultConsensusPolicy(), nil)
	result := e.Evaluate([]string{"a", "b", "c"}, []AgentVote{
		vote("a", "option_1"), vote("b", "option_1"), vote("c", "option_1"),
	})

	assert.Equal(t, OutcomeUnanimous, result.Outcome)
	assert.Equal(t, "option_1", result.WinningOptionID)
	assert.Empty(t, result.NonVoters)
}

func TestEvaluateSplit(t *testing.T) {
	e := NewEvaluator(DefaultConsensusPolicy(), nil)
	result := e.Evaluate([]string{"a", "b"}, []AgentVote{
		vote("a", "option_1"), vote("b", "option_2"),
	})

	assert.Equal(t, OutcomeSplit, result.Outcome)
	assert.Empty(t, result.WinningOptionID, "ties are never broken automatically")
}

func TestEvaluateNoVotes(t *testing.T) {
	e := NewEvaluator(DefaultConsensusPolicy(), nil)
	result := e.Evaluate([]string{"a", "b"}, nil)

	assert.Equal(t, OutcomeNoVotes, result.Outcome)
	assert.ElementsMatch(t, []string{"a", "b"}, result.NonVoters)
}

func TestEvaluateQuorum(t *testing.T) {
	votes := []AgentVote{vote("a", "option_2")}
	involved := []string{"a", "b", "c"}

	strict := NewEvaluator(ConsensusPolicy{RequireFullQuorum: true}, nil)
	result := strict.Evaluate(involved, votes)
	assert.Equal(t, OutcomeNoQuorum, result.Outcome,
		"a lone responder must not decide for absent peers")
	assert.Equal(t, "option_2", result.WinningOptionID)
	assert.ElementsMatch(t, []string{"b", "c"}, result.NonVoters)

	lenient := NewEvaluator(ConsensusPolicy{RequireFullQuorum: false}, nil)
	result = lenient.Evaluate(involved, votes)
	assert.Equal(t, OutcomeUnanimous, result.Outcome,
		"relaxed policy lets the responding subset decide")
}

func TestEvaluateSplitBeatsQuorum(t *testing.T) {
	// A split among responders is a split even when quorum is also unmet.
	e := NewEvaluator(DefaultConsensusPolicy(), nil)
	result := e.Evaluate([]string{"a", "b", "c"}, []AgentVote{
		vote("a", "option_1"), vote("b", "option_2"),
	})
	assert.Equal(t, OutcomeSplit, result.Outcome)
}
