package accord_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accordhq/accord"
	"github.com/accordhq/accord/audit"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/testutil"
	"github.com/accordhq/accord/testutil/fixtures"
)

func TestNewEngineWithDefaults(t *testing.T) {
	planner := fixtures.NewStubAgent("planner")
	budget := fixtures.NewStubAgent("budget")
	planner.VoteFor = "option_1"
	budget.VoteFor = "option_1"

	cfg := negotiation.DefaultEngineConfig()
	cfg.Orchestrator.AgentCallTimeout = 200 * time.Millisecond
	cfg.Scheduler.AttemptsPerWindow = 100
	cfg.Scheduler.RateWindow = time.Second

	sink := audit.NewMemorySink()
	engine, err := accord.New(
		accord.WithConfig(cfg),
		accord.WithAgents(planner, budget),
		accord.WithAuditSink(sink),
	)
	require.NoError(t, err)
	engine.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Close(ctx)
	})

	ctx := testutil.TestContext(t)
	conflict, handle, err := engine.CreateConflict(ctx,
		negotiation.ConflictScheduleClash, negotiation.SeverityHigh,
		"keynote and workshop booked in the same hall",
		[]string{"planner", "budget"},
		map[string]string{"planner": "keep the keynote", "budget": "keep the workshop"})
	require.NoError(t, err)

	select {
	case <-handle.Done():
	case <-ctx.Done():
		t.Fatal("negotiation never completed")
	}
	require.NoError(t, handle.Err())

	status, err := engine.Status(ctx, conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusAutoResolved, status)
	assert.NotEmpty(t, sink.ByConflict(conflict.ID), "the audit trail mirrors the resolution log")
}
