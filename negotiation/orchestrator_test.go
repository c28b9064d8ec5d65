package negotiation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/negotiation/store"
	"github.com/accordhq/accord/testutil/fixtures"
	"github.com/accordhq/accord/types"
)

func orchestratorFixture(t *testing.T, agents ...negotiation.Agent) (*negotiation.Orchestrator, negotiation.ConflictStore, *negotiation.ChannelNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	registry := negotiation.NewRegistry()
	for _, a := range agents {
		registry.Register(a)
	}
	notifier := negotiation.NewChannelNotifier(8, nil)
	config := negotiation.DefaultOrchestratorConfig()
	config.AgentCallTimeout = 200 * time.Millisecond
	o := negotiation.NewOrchestrator(config, st, registry, nil, nil, notifier, nil, nil, nil)
	return o, st, notifier
}

func createConflict(t *testing.T, st negotiation.ConflictStore, typ negotiation.ConflictType, positions map[string]string) *negotiation.Conflict {
	t.Helper()
	agents := make([]string, 0, len(positions))
	for id := range positions {
		agents = append(agents, id)
	}
	c, err := negotiation.NewConflict(typ, negotiation.SeverityHigh, "fixture conflict", agents, positions)
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), c))
	return c
}

func hasLogAction(c *negotiation.Conflict, action string) bool {
	for _, ev := range c.ResolutionLog {
		if ev.Action == action {
			return true
		}
	}
	return false
}

func TestOrchestratorUnanimousVoteAutoResolves(t *testing.T) {
	alpha := fixtures.NewStubAgent("alpha")
	beta := fixtures.NewStubAgent("beta")
	alpha.VoteFor = "option_1"
	beta.VoteFor = "option_1"
	o, st, _ := orchestratorFixture(t, alpha, beta)
	conflict := createConflict(t, st, negotiation.ConflictScheduleClash, map[string]string{
		"alpha": "keep the 9am slot", "beta": "keep the 9am slot",
	})

	result, err := o.Run(context.Background(), conflict.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, negotiation.AttemptResolved, result.Outcome)
	require.NotNil(t, result.WinningOption)
	assert.Equal(t, "option_1", result.WinningOption.OptionID)
	assert.Len(t, result.Votes, 2)

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusAutoResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, hasLogAction(got, negotiation.ActionAttemptStarted))
	assert.True(t, hasLogAction(got, negotiation.ActionConstraintsCollected))
	assert.True(t, hasLogAction(got, negotiation.ActionProposalsGenerated))
	assert.True(t, hasLogAction(got, negotiation.ActionVotesCollected))
	assert.True(t, hasLogAction(got, negotiation.ActionResolutionApplied))
}

func TestOrchestratorSplitVoteEscalates(t *testing.T) {
	alpha := fixtures.NewStubAgent("alpha")
	beta := fixtures.NewStubAgent("beta")
	alpha.VoteFor = "option_1"
	beta.VoteFor = "option_2"
	o, st, notifier := orchestratorFixture(t, alpha, beta)
	conflict := createConflict(t, st, negotiation.ConflictResourceConstraint, map[string]string{
		"alpha": "needs the budget", "beta": "needs the budget more",
	})

	result, err := o.Run(context.Background(), conflict.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, negotiation.AttemptEscalated, result.Outcome)

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusEscalated, got.Status)
	assert.True(t, got.HumanActionRequired)
	assert.True(t, hasLogAction(got, negotiation.ActionEscalated))

	select {
	case event := <-notifier.Events():
		assert.Equal(t, conflict.ID, event.ConflictID)
		assert.Equal(t, negotiation.ReasonSplitVote, event.Reason)
		assert.Len(t, event.Votes, 2)
	default:
		t.Fatal("expected an escalation event on the notifier channel")
	}
}

func TestOrchestratorInsufficientOptionsEscalates(t *testing.T) {
	solo := fixtures.NewStubAgent("solo")
	o, st, notifier := orchestratorFixture(t, solo)
	conflict := createConflict(t, st, negotiation.ConflictOther, map[string]string{
		"solo": "wants everything",
	})

	result, err := o.Run(context.Background(), conflict.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, negotiation.AttemptEscalated, result.Outcome)
	assert.Equal(t, 0, solo.VoteCalls(), "voting never runs when proposal generation comes up short")

	select {
	case event := <-notifier.Events():
		assert.Equal(t, negotiation.ReasonInsufficientOptions, event.Reason)
	default:
		t.Fatal("expected an escalation event on the notifier channel")
	}
}

func TestOrchestratorQuorumShortfallEscalates(t *testing.T) {
	alpha := fixtures.NewStubAgent("alpha")
	alpha.VoteFor = "option_1"
	silent := fixtures.NewHangingAgent("silent")
	o, st, notifier := orchestratorFixture(t, alpha, silent)
	conflict := createConflict(t, st, negotiation.ConflictVIPAvailability, map[string]string{
		"alpha": "needs the keynote speaker friday", "silent": "needs the keynote speaker saturday",
	})

	result, err := o.Run(context.Background(), conflict.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, negotiation.AttemptEscalated, result.Outcome)

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusEscalated, got.Status)

	select {
	case event := <-notifier.Events():
		assert.Equal(t, negotiation.ReasonNoQuorum, event.Reason,
			"a lone responder must not decide for an absent peer")
	default:
		t.Fatal("expected an escalation event on the notifier channel")
	}
}

func TestOrchestratorZeroRespondersIsRetryable(t *testing.T) {
	// No agents registered at all: every constraint call misses the registry.
	o, st, _ := orchestratorFixture(t)
	conflict := createConflict(t, st, negotiation.ConflictScheduleClash, map[string]string{
		"ghost_a": "p1", "ghost_b": "p2",
	})

	_, err := o.Run(context.Background(), conflict.ID, 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoRespondingAgents, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	got, getErr := st.Get(context.Background(), conflict.ID)
	require.NoError(t, getErr)
	assert.Equal(t, negotiation.StatusNegotiating, got.Status, "a retryable failure leaves the conflict negotiating")
	assert.True(t, hasLogAction(got, negotiation.ActionAttemptFailed))
}

func TestOrchestratorSkipsTerminalConflict(t *testing.T) {
	alpha := fixtures.NewStubAgent("alpha")
	o, st, _ := orchestratorFixture(t, alpha)
	conflict := createConflict(t, st, negotiation.ConflictOther, map[string]string{"alpha": "p"})
	_, err := st.Mutate(context.Background(), conflict.ID, func(c *negotiation.Conflict) error {
		if err := c.Transition(negotiation.StatusNegotiating, negotiation.ActorOrchestrator, "seed", nil); err != nil {
			return err
		}
		return c.Transition(negotiation.StatusEscalated, negotiation.ActorOrchestrator, "seed", nil)
	})
	require.NoError(t, err)

	result, err := o.Run(context.Background(), conflict.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, negotiation.AttemptSkipped, result.Outcome)
	assert.Equal(t, 0, alpha.ConstraintCalls())
}

func TestOrchestratorRunUnknownConflict(t *testing.T) {
	o, _, _ := orchestratorFixture(t)
	_, err := o.Run(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.Equal(t, types.ErrConflictNotFound, types.GetErrorCode(err))
}

func TestOrchestratorMarkFailed(t *testing.T) {
	o, st, _ := orchestratorFixture(t)
	conflict := createConflict(t, st, negotiation.ConflictOther, map[string]string{"alpha": "p"})

	cause := types.NewError(types.ErrAttemptsExhausted, "3 attempts failed")
	require.NoError(t, o.MarkFailed(context.Background(), conflict.ID, cause))

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusFailed, got.Status)
	assert.True(t, hasLogAction(got, negotiation.ActionAttemptFailed))

	// Marking an already terminal conflict is a no-op, not an error.
	require.NoError(t, o.MarkFailed(context.Background(), conflict.ID, cause))
	got, err = st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusFailed, got.Status)
}
