// Package agentmesh provides a top-level convenience entry point for
// embedding the orchestrator in another program with minimal boilerplate.
//
// Usage:
//
//	import "github.com/agentmesh/agentmesh"
//
//	o, err := agentmesh.New(agentmesh.Endpoints{
//		Planner:  "http://planner:8000/plan",
//		Executor: "http://executor:8000/execute",
//		Verifier: "http://verifier:8000/verify",
//		Critic:   "http://critic:8000/critique",
//	})
//	resp := o.ProcessQuery(ctx, "what changed last week?", agentmesh.Options{})
//
// The HTTP service in cmd/agentmesh wires the same pieces with full
// configuration; use this package when you only need the orchestrator.
package agentmesh

import (
	"time"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/agents"
	"github.com/agentmesh/agentmesh/orchestrator"
	"github.com/agentmesh/agentmesh/tools"
	"github.com/agentmesh/agentmesh/types"
)

// Endpoints re-exports the remote agent endpoint set.
type Endpoints = agents.Endpoints

// Options re-exports the per-query options.
type Options = orchestrator.Options

// MultiAgentResponse re-exports the orchestration result.
type MultiAgentResponse = orchestrator.MultiAgentResponse

// Option configures the orchestrator created by [New].
type Option func(*settings)

type settings struct {
	logger  *zap.Logger
	tools   []types.ToolDescriptor
	timeout time.Duration
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithTools sets the static tool catalog offered to the planner.
func WithTools(descriptors []types.ToolDescriptor) Option {
	return func(s *settings) { s.tools = descriptors }
}

// WithTimeout sets the per-call timeout for remote agent requests.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New creates an orchestrator talking to the given agent endpoints, with a
// static tool catalog and no event or metric export. For anything beyond
// that, wire the subpackages directly.
func New(endpoints Endpoints, opts ...Option) (*orchestrator.Orchestrator, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	if endpoints.Planner == "" || endpoints.Executor == "" || endpoints.Verifier == "" {
		return nil, types.NewError(types.ErrInvalidRequest,
			"planner, executor, and verifier endpoints are required")
	}

	client := agents.NewClient(endpoints, s.timeout, s.logger, nil)
	return orchestrator.New(orchestrator.Params{
		Agents:  client,
		Catalog: tools.NewStaticCatalog(s.tools),
		Logger:  s.logger,
	}), nil
}
