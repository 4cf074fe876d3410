// Package agent provides the agent-side contracts of the orchestration
// engine: the action union agents emit and a registry that routes
// stage invocations to registered agents by ID.
package agent

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/witmind/conductor/types"
	"github.com/witmind/conductor/workflow"
)

// Agent executes the task of a stage. Implementations read prior stage
// outputs from the snapshot and communicate results only through the
// returned TaskResult.
type Agent interface {
	ID() string
	Execute(ctx context.Context, task types.TaskSpec, results workflow.Snapshot) (types.TaskResult, error)
}

// Func adapts a function to the Agent interface.
type Func struct {
	AgentID string
	Fn      func(ctx context.Context, task types.TaskSpec, results workflow.Snapshot) (types.TaskResult, error)
}

func (f Func) ID() string { return f.AgentID }

func (f Func) Execute(ctx context.Context, task types.TaskSpec, results workflow.Snapshot) (types.TaskResult, error) {
	return f.Fn(ctx, task, results)
}

// Registry routes stage invocations to agents by ID. It implements
// workflow.AgentInvoker and is safe for concurrent use by
// parallel-group workers.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	logger *zap.Logger
}

// NewRegistry creates an empty agent registry. A nil logger defaults
// to a no-op logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds an agent. Duplicate IDs fail.
func (r *Registry) Register(a Agent) error {
	if a == nil || a.ID() == "" {
		return types.NewError(types.ErrValidation, "agent must have an ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID()]; exists {
		return types.NewErrorf(types.ErrValidation, "agent already registered: %s", a.ID())
	}
	r.agents[a.ID()] = a
	r.logger.Debug("agent registered", zap.String("agent_id", a.ID()))
	return nil
}

// Get retrieves an agent by ID.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns the registered agent IDs, sorted.
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

// Invoke implements workflow.AgentInvoker.
func (r *Registry) Invoke(ctx context.Context, agentID string, task types.TaskSpec, results workflow.Snapshot) (types.TaskResult, error) {
	a, ok := r.Get(agentID)
	if !ok {
		return types.TaskResult{}, types.NewErrorf(types.ErrAgentNotFound, "agent not found: %s", agentID)
	}
	return a.Execute(ctx, task, results)
}
