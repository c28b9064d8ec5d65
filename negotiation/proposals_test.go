package negotiation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConflict(t *testing.T, typ ConflictType, positions map[string]string) *Conflict {
	t.Helper()
	agents := make([]string, 0, len(positions))
	for id := range positions {
		agents = append(agents, id)
	}
	c, err := NewConflict(typ, SeverityHigh, "test conflict", agents, positions)
	require.NoError(t, err)
	return c
}

func constraintsFor(priorities map[string]int) *ConstraintSet {
	set := &ConstraintSet{Records: make(map[string]*ConstraintRecord)}
	for id, p := range priorities {
		set.Records[id] = &ConstraintRecord{AgentID: id, Priority: p, Responded: true}
	}
	return set
}

func TestHeuristicGeneratorOrdersByPriority(t *testing.T) {
	conflict := newTestConflict(t, ConflictResourceConstraint, map[string]string{
		"alpha": "needs the main hall",
		"beta":  "needs the main hall too",
	})
	// beta declared the stronger constraint, so its option ranks first
	set := constraintsFor(map[string]int{"alpha": 3, "beta": 9})

	g := NewHeuristicGenerator(nil)
	options, err := g.Generate(context.Background(), &ConflictContext{}, conflict, set)
	require.NoError(t, err)
	require.Len(t, options, 2)

	assert.Contains(t, options[0].ActionDescription, "beta")
	assert.Contains(t, options[1].ActionDescription, "alpha")
	assert.Equal(t, "option_1", options[0].OptionID)
	assert.Equal(t, "option_2", options[1].OptionID)
}

func TestHeuristicGeneratorCompromiseForTimeConflicts(t *testing.T) {
	conflict := newTestConflict(t, ConflictScheduleClash, map[string]string{
		"alpha": "morning slot",
		"beta":  "afternoon slot",
	})
	set := constraintsFor(map[string]int{"alpha": 5, "beta": 5})

	g := NewHeuristicGenerator(nil)
	options, err := g.Generate(context.Background(), &ConflictContext{}, conflict, set)
	require.NoError(t, err)
	require.Len(t, options, 3)
	assert.Contains(t, options[2].ActionDescription, "joint")
	assert.Equal(t, true, options[2].Parameters["compromise"])
}

func TestHeuristicGeneratorSkipsBlankAndDuplicatePositions(t *testing.T) {
	conflict := newTestConflict(t, ConflictBudgetAllocation, map[string]string{
		"alpha": "cap spend at 10k",
	})
	conflict.AgentsInvolved = append(conflict.AgentsInvolved, "gamma")
	conflict.ConflictingPositions["gamma"] = "" // no declared position

	g := NewHeuristicGenerator(nil)
	options, err := g.Generate(context.Background(), &ConflictContext{},
		conflict, constraintsFor(map[string]int{"alpha": 5}))
	require.NoError(t, err)
	assert.Len(t, options, 1, "blank positions produce no options")
}

func TestHeuristicGeneratorCapsOptions(t *testing.T) {
	positions := map[string]string{
		"a": "position one", "b": "position two", "c": "position three",
		"d": "position four", "e": "position five",
	}
	conflict := newTestConflict(t, ConflictScheduleClash, positions)

	g := NewHeuristicGenerator(nil)
	options, err := g.Generate(context.Background(), &ConflictContext{},
		conflict, constraintsFor(nil))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(options), MaxProposalOptions)
}

func TestValidateOptions(t *testing.T) {
	input := []ResolutionOption{
		{OptionID: "option_1", ActionDescription: "keep alpha"},
		{OptionID: "", ActionDescription: "missing id"},
		{OptionID: "option_2", ActionDescription: "   "},
		{OptionID: "option_1", ActionDescription: "duplicate id"},
		{OptionID: "option_3", ActionDescription: "Keep   ALPHA"}, // same action, normalized
		{OptionID: "option_4", ActionDescription: "keep beta"},
	}

	valid := ValidateOptions(input)
	require.Len(t, valid, 2)
	assert.Equal(t, "option_1", valid[0].OptionID)
	assert.Equal(t, "option_4", valid[1].OptionID)
}
