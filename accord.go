// Package accord provides a top-level convenience entry point for embedding
// the conflict negotiation engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/accordhq/accord"
//
//	engine, err := accord.New(
//	    accord.WithAgents(plannerAgent, budgetAgent),
//	)
//	engine.Start()
//	defer engine.Close(ctx)
//
//	conflict, handle, err := engine.CreateConflict(ctx,
//	    negotiation.ConflictScheduleClash, negotiation.SeverityHigh,
//	    "keynote and workshop booked in the same hall",
//	    []string{"planner", "budget"}, positions)
//	<-handle.Done()
//
// By default conflicts live in an in-memory store and escalations are
// logged; use the options to plug in a durable store, a notifier, or an
// audit sink.
package accord

import (
	"go.uber.org/zap"

	"github.com/accordhq/accord/audit"
	"github.com/accordhq/accord/internal/metrics"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/negotiation/store"
)

// Option configures the engine created by [New].
type Option func(*builder)

type builder struct {
	config    negotiation.EngineConfig
	store     negotiation.ConflictStore
	registry  *negotiation.Registry
	effector  negotiation.SideEffector
	generator negotiation.ProposalGenerator
	notifier  negotiation.Notifier
	sink      audit.Sink
	collector *metrics.Collector
	logger    *zap.Logger
	agents    []negotiation.Agent
}

// WithConfig replaces the default engine configuration.
func WithConfig(config negotiation.EngineConfig) Option {
	return func(b *builder) { b.config = config }
}

// WithStore sets the conflict store. Defaults to an in-memory store.
func WithStore(s negotiation.ConflictStore) Option {
	return func(b *builder) { b.store = s }
}

// WithRegistry sets a pre-populated agent registry.
func WithRegistry(r *negotiation.Registry) Option {
	return func(b *builder) { b.registry = r }
}

// WithAgents registers agents on the engine's registry.
func WithAgents(agents ...negotiation.Agent) Option {
	return func(b *builder) { b.agents = append(b.agents, agents...) }
}

// WithSideEffector sets the resolution side effector.
func WithSideEffector(e negotiation.SideEffector) Option {
	return func(b *builder) { b.effector = e }
}

// WithProposalGenerator replaces the heuristic proposal generator.
func WithProposalGenerator(g negotiation.ProposalGenerator) Option {
	return func(b *builder) { b.generator = g }
}

// WithNotifier sets the escalation notifier. Defaults to logging.
func WithNotifier(n negotiation.Notifier) Option {
	return func(b *builder) { b.notifier = n }
}

// WithAuditSink sets the audit sink.
func WithAuditSink(s audit.Sink) Option {
	return func(b *builder) { b.sink = s }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(b *builder) { b.collector = c }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// New creates a [negotiation.Engine] with sensible defaults. Call Start on
// the returned engine before creating conflicts.
func New(opts ...Option) (*negotiation.Engine, error) {
	b := &builder{
		config: negotiation.DefaultEngineConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.store == nil {
		b.store = store.NewMemoryStore()
	}
	if b.registry == nil {
		b.registry = negotiation.NewRegistry()
	}
	for _, a := range b.agents {
		b.registry.Register(a)
	}

	engine := negotiation.NewEngine(b.config, b.store, b.registry,
		b.effector, b.generator, b.notifier, b.sink, b.collector, b.logger)
	return engine, nil
}
