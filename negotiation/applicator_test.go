package negotiation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/negotiation/store"
	"github.com/accordhq/accord/types"
)

type recordingEffector struct {
	calls int
	err   error
	last  negotiation.ResolutionOption
}

func (e *recordingEffector) Execute(_ context.Context, _ *negotiation.Conflict, option negotiation.ResolutionOption) error {
	e.calls++
	e.last = option
	return e.err
}

func seedNegotiatingConflict(t *testing.T, st negotiation.ConflictStore) *negotiation.Conflict {
	t.Helper()
	c, err := negotiation.NewConflict(negotiation.ConflictScheduleClash, negotiation.SeverityHigh,
		"two agents booked the same room",
		[]string{"alpha", "beta"},
		map[string]string{"alpha": "keep 9am", "beta": "keep 9am"})
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), c))
	_, err = st.Mutate(context.Background(), c.ID, func(c *negotiation.Conflict) error {
		return c.Transition(negotiation.StatusNegotiating, negotiation.ActorOrchestrator, "attempt_1", nil)
	})
	require.NoError(t, err)
	return c
}

func TestApplicatorCommitsResolution(t *testing.T) {
	st := store.NewMemoryStore()
	conflict := seedNegotiatingConflict(t, st)
	effector := &recordingEffector{}
	app := negotiation.NewApplicator(st, effector, nil)

	winning := negotiation.ResolutionOption{OptionID: "option_1", ActionDescription: "move beta to 10am"}
	votes := []negotiation.AgentVote{
		{AgentID: "alpha", OptionID: "option_1"},
		{AgentID: "beta", OptionID: "option_1", Rationale: "10am works"},
	}

	applied, err := app.Apply(context.Background(), conflict.ID, "attempt_1", winning, votes)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, effector.calls)
	assert.Equal(t, "option_1", effector.last.OptionID)

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusAutoResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	last := got.ResolutionLog[len(got.ResolutionLog)-1]
	assert.Equal(t, negotiation.ActionStatusChanged, last.Action)
	applyEvent := got.ResolutionLog[len(got.ResolutionLog)-2]
	assert.Equal(t, negotiation.ActionResolutionApplied, applyEvent.Action)
	assert.Equal(t, negotiation.ActorApplicator, applyEvent.Actor)
	assert.Len(t, applyEvent.Payload["votes"], 2)
}

func TestApplicatorAbortsWhenResolvedExternally(t *testing.T) {
	st := store.NewMemoryStore()
	conflict := seedNegotiatingConflict(t, st)
	_, err := st.Mutate(context.Background(), conflict.ID, func(c *negotiation.Conflict) error {
		return c.Transition(negotiation.StatusEscalated, negotiation.ActorExternal, "", nil)
	})
	require.NoError(t, err)

	effector := &recordingEffector{}
	app := negotiation.NewApplicator(st, effector, nil)

	applied, err := app.Apply(context.Background(), conflict.ID, "attempt_1",
		negotiation.ResolutionOption{OptionID: "option_1"}, nil)
	require.NoError(t, err, "an externally resolved conflict aborts the apply without error")
	assert.False(t, applied)
	assert.Equal(t, 0, effector.calls, "side effects must not run when the apply aborts")

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusEscalated, got.Status)
}

func TestApplicatorEffectorFailureIsRetryable(t *testing.T) {
	st := store.NewMemoryStore()
	conflict := seedNegotiatingConflict(t, st)
	effector := &recordingEffector{err: errors.New("calendar backend unreachable")}
	app := negotiation.NewApplicator(st, effector, nil)

	applied, err := app.Apply(context.Background(), conflict.ID, "attempt_1",
		negotiation.ResolutionOption{OptionID: "option_1"}, nil)
	require.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, types.ErrPersistence, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	got, err := st.Get(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusNegotiating, got.Status, "a failed commit leaves the conflict negotiating")
	assert.Nil(t, got.ResolvedAt)
}

func TestApplicatorUnknownConflict(t *testing.T) {
	app := negotiation.NewApplicator(store.NewMemoryStore(), nil, nil)
	applied, err := app.Apply(context.Background(), "missing", "attempt_1",
		negotiation.ResolutionOption{OptionID: "option_1"}, nil)
	require.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, types.ErrConflictNotFound, types.GetErrorCode(err))
}
