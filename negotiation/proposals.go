package negotiation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ProposalGenerator synthesizes candidate resolutions from a conflict and
// the collected constraints. Determinism is not required, but every option
// must be well-formed: non-empty action description and an option id unique
// within the attempt.
type ProposalGenerator interface {
	Generate(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, constraints *ConstraintSet) ([]ResolutionOption, error)
}

// MaxProposalOptions caps how many options one attempt puts to a vote.
const MaxProposalOptions = 4

// HeuristicGenerator is the default generator. It proposes keeping each
// agent's position, ordered by declared constraint priority, plus a
// joint-reschedule compromise for time-based conflict types. An LLM-backed
// generator can be injected in its place.
type HeuristicGenerator struct {
	logger *zap.Logger
}

// NewHeuristicGenerator creates the default proposal generator.
func NewHeuristicGenerator(logger *zap.Logger) *HeuristicGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeuristicGenerator{logger: logger.With(zap.String("component", "proposal_generator"))}
}

// Generate implements ProposalGenerator.
func (g *HeuristicGenerator) Generate(ctx context.Context, conflictCtx *ConflictContext, conflict *Conflict, constraints *ConstraintSet) ([]ResolutionOption, error) {
	// Highest-priority constraints first; ties break on AgentsInvolved order
	// so repeated runs stay stable.
	ordered := append([]string(nil), conflict.AgentsInvolved...)
	rank := make(map[string]int, len(ordered))
	for i, id := range ordered {
		rank[id] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := DefaultPriority, DefaultPriority
		if r, ok := constraints.Records[ordered[i]]; ok {
			pi = r.Priority
		}
		if r, ok := constraints.Records[ordered[j]]; ok {
			pj = r.Priority
		}
		if pi != pj {
			return pi > pj
		}
		return rank[ordered[i]] < rank[ordered[j]]
	})

	options := make([]ResolutionOption, 0, MaxProposalOptions)
	seen := make(map[string]struct{})

	for _, agentID := range ordered {
		if len(options) == MaxProposalOptions {
			break
		}
		position := strings.TrimSpace(conflict.ConflictingPositions[agentID])
		if position == "" {
			continue
		}
		desc := fmt.Sprintf("keep %s position: %s", agentID, position)
		key := normalizeAction(desc)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		params := map[string]any{"favored_agent": agentID}
		if rec, ok := constraints.Records[agentID]; ok {
			params["priority"] = rec.Priority
		}
		options = append(options, ResolutionOption{
			OptionID:          fmt.Sprintf("option_%d", len(options)+1),
			ActionDescription: desc,
			Parameters:        params,
		})
	}

	if len(options) < MaxProposalOptions && len(conflict.AgentsInvolved) >= 2 && timeBased(conflict.Type) {
		options = append(options, ResolutionOption{
			OptionID:          fmt.Sprintf("option_%d", len(options)+1),
			ActionDescription: "reschedule a joint session accommodating all parties",
			Parameters:        map[string]any{"compromise": true},
		})
	}

	g.logger.Debug("proposals generated",
		zap.String("conflict_id", conflict.ID),
		zap.String("attempt_id", conflictCtx.AttemptID),
		zap.Int("options", len(options)),
	)
	return options, nil
}

func timeBased(t ConflictType) bool {
	return t == ConflictScheduleClash || t == ConflictVIPAvailability
}

func normalizeAction(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ValidateOptions checks well-formedness and returns only distinct, usable
// options. The orchestrator escalates when fewer than two survive.
func ValidateOptions(options []ResolutionOption) []ResolutionOption {
	valid := make([]ResolutionOption, 0, len(options))
	ids := make(map[string]struct{}, len(options))
	actions := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if opt.OptionID == "" || strings.TrimSpace(opt.ActionDescription) == "" {
			continue
		}
		if _, dup := ids[opt.OptionID]; dup {
			continue
		}
		key := normalizeAction(opt.ActionDescription)
		if _, dup := actions[key]; dup {
			continue
		}
		ids[opt.OptionID] = struct{}{}
		actions[key] = struct{}{}
		valid = append(valid, opt)
	}
	return valid
}
