// Package fixtures provides scripted negotiation agents for tests.
package fixtures

import (
	"context"
	"sync/atomic"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/types"
)

// StubAgent is a scripted negotiation participant. The zero value responds
// with a priority-5 constraint and votes for the first option; override the
// fields to script other behavior.
type StubAgent struct {
	AgentID  string
	Priority int

	// VoteFor selects the option id to vote for. Empty means first option.
	VoteFor string

	// ConstraintErr and VoteErr make the corresponding call fail.
	ConstraintErr error
	VoteErr       error

	// Hang makes calls block until the context is cancelled, simulating a
	// timed-out agent backend.
	Hang bool

	// MalformedVote returns a vote for an unknown option id.
	MalformedVote bool

	constraintCalls atomic.Int64
	voteCalls       atomic.Int64
}

// NewStubAgent returns an agent that cooperates with the defaults.
func NewStubAgent(id string) *StubAgent {
	return &StubAgent{AgentID: id, Priority: 5}
}

// NewHangingAgent returns an agent that never answers.
func NewHangingAgent(id string) *StubAgent {
	return &StubAgent{AgentID: id, Priority: 5, Hang: true}
}

// NewFailingAgent returns an agent whose calls fail with a retryable timeout.
func NewFailingAgent(id string) *StubAgent {
	err := types.NewError(types.ErrAgentTimeout, "scripted failure").WithRetryable(true).WithAgent(id)
	return &StubAgent{AgentID: id, Priority: 5, ConstraintErr: err, VoteErr: err}
}

func (a *StubAgent) ID() string { return a.AgentID }

// ConstraintCalls reports how many times DeclareConstraints ran.
func (a *StubAgent) ConstraintCalls() int { return int(a.constraintCalls.Load()) }

// VoteCalls reports how many times EvaluateProposals ran.
func (a *StubAgent) VoteCalls() int { return int(a.voteCalls.Load()) }

func (a *StubAgent) DeclareConstraints(ctx context.Context, cc *negotiation.ConflictContext, position string) (*negotiation.ConstraintRecord, error) {
	a.constraintCalls.Add(1)
	if a.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.ConstraintErr != nil {
		return nil, a.ConstraintErr
	}

	priority := a.Priority
	if priority == 0 {
		priority = 5
	}
	requirements := []string{}
	if position != "" {
		requirements = append(requirements, position)
	}
	return &negotiation.ConstraintRecord{
		AgentID:      a.AgentID,
		Priority:     priority,
		Requirements: requirements,
		Responded:    true,
	}, nil
}

func (a *StubAgent) EvaluateProposals(ctx context.Context, cc *negotiation.ConflictContext, options []negotiation.ResolutionOption) (*negotiation.AgentVote, error) {
	a.voteCalls.Add(1)
	if a.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.VoteErr != nil {
		return nil, a.VoteErr
	}
	if a.MalformedVote {
		return &negotiation.AgentVote{
			AgentID:  a.AgentID,
			OptionID: "option_does_not_exist",
		}, nil
	}

	optionID := a.VoteFor
	if optionID == "" && len(options) > 0 {
		optionID = options[0].OptionID
	}
	return &negotiation.AgentVote{
		AgentID:   a.AgentID,
		OptionID:  optionID,
		Rationale: "scripted choice",
	}, nil
}
