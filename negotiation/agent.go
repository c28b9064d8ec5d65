package negotiation

import (
	"context"
	"sort"
	"sync"

	"github.com/accordhq/accord/types"
)

// ConflictContext is the read-only view of a conflict handed to agents on
// every capability call. It carries the attempt id so agent backends can
// correlate repeated attempts on the same conflict.
type ConflictContext struct {
	ConflictID  string            `json:"conflict_id"`
	AttemptID   string            `json:"attempt_id"`
	Type        ConflictType      `json:"conflict_type"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Positions   map[string]string `json:"positions"`
}

// ConstraintRecord is an agent's declared constraint for a conflict.
// Priority ranges 1 (flexible) to 10 (immovable). Non-responding agents get
// a default record with DefaultPriority and Responded=false.
type ConstraintRecord struct {
	AgentID      string   `json:"agent_id"`
	Priority     int      `json:"priority"`
	Requirements []string `json:"requirements,omitempty"`
	Responded    bool     `json:"responded"`
}

const (
	// MinPriority and MaxPriority bound a well-formed constraint priority.
	MinPriority = 1
	MaxPriority = 10
	// DefaultPriority is assigned to non-responding agents so negotiation
	// can proceed without them.
	DefaultPriority = MinPriority
)

// ResolutionOption is one candidate resolution, ephemeral per attempt.
type ResolutionOption struct {
	OptionID          string         `json:"option_id"`
	ActionDescription string         `json:"action_description"`
	Parameters        map[string]any `json:"parameters,omitempty"`
}

// AgentVote is an agent's choice among the attempt's resolution options.
type AgentVote struct {
	AgentID   string `json:"agent_id"`
	OptionID  string `json:"chosen_option_id"`
	Rationale string `json:"rationale,omitempty"`
}

// Agent is the capability interface every negotiation participant must
// satisfy. LLM-backed implementations are injected from outside the engine;
// the orchestrator treats them as opaque and bounds every call with a
// timeout.
type Agent interface {
	// ID returns the stable agent identifier used in AgentsInvolved.
	ID() string

	// DeclareConstraints returns the agent's constraints for the conflict,
	// given its own declared position.
	DeclareConstraints(ctx context.Context, cc *ConflictContext, position string) (*ConstraintRecord, error)

	// EvaluateProposals evaluates the full option set and returns exactly
	// one chosen option id with a rationale.
	EvaluateProposals(ctx context.Context, cc *ConflictContext, options []ResolutionOption) (*AgentVote, error)
}

// Registry maps agent ids to capability implementations. Safe for concurrent
// use from all workers.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds or replaces an agent.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Lookup returns the agent with the given id.
func (r *Registry) Lookup(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, types.NewError(types.ErrAgentUnavailable, "agent not registered: "+id)
	}
	return a, nil
}

// IDs returns all registered agent ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
