// Package conductor provides a top-level convenience entry point for
// running stage workflows with minimal boilerplate.
//
// Usage:
//
//	import "github.com/witmind/conductor"
//
//	result, err := conductor.Run(ctx, stages, invoker, nil)
//
// This is a thin wrapper around the workflow package; both produce
// identical results. Use this package when you prefer the shorter
// import path.
package conductor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/witmind/conductor/config"
	"github.com/witmind/conductor/workflow"
)

// Re-export the workflow surface so simple callers never need to
// import workflow/ directly.
type (
	Stage        = workflow.Stage
	Graph        = workflow.Graph
	Engine       = workflow.Engine
	Result       = workflow.Result
	Snapshot     = workflow.Snapshot
	AgentInvoker = workflow.AgentInvoker
	InvokerFunc  = workflow.InvokerFunc
	ApprovalFunc = workflow.ApprovalFunc
	Condition    = workflow.Condition
	Option       = workflow.Option
)

const (
	PolicyStop  = workflow.PolicyStop
	PolicySkip  = workflow.PolicySkip
	PolicyRetry = workflow.PolicyRetry
)

// Approval shortcuts.
var (
	AutoApprove = workflow.AutoApprove
	DenyAll     = workflow.DenyAll
)

// Engine options.
var (
	WithLogger          = workflow.WithLogger
	WithMetrics         = workflow.WithMetrics
	WithEmitter         = workflow.WithEmitter
	WithDispatchLimiter = workflow.WithDispatchLimiter
	WithRetryBackoff    = workflow.WithRetryBackoff
	WithMaxParallel     = workflow.WithMaxParallel
	WithVariables       = workflow.WithVariables
	WithTracer          = workflow.WithTracer
)

// New validates the stages into a graph and builds an engine for them.
func New(stages []*workflow.Stage, invoker workflow.AgentInvoker, opts ...workflow.Option) (*workflow.Engine, error) {
	g, err := workflow.NewGraph(stages...)
	if err != nil {
		return nil, err
	}
	return workflow.New(g, invoker, opts...), nil
}

// Run builds an engine and executes it in one call.
func Run(ctx context.Context, stages []*workflow.Stage, invoker workflow.AgentInvoker, approval workflow.ApprovalFunc, opts ...workflow.Option) (*workflow.Result, error) {
	e, err := New(stages, invoker, opts...)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, approval)
}

// LoadGraph reads a YAML workflow definition and materializes it.
// Named conditions referenced by the definition are resolved against
// the given map.
func LoadGraph(path string, conditions map[string]workflow.Condition) (*workflow.Graph, error) {
	def, err := workflow.ParseDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	return def.Graph(conditions)
}

// OptionsFromConfig translates engine configuration into engine
// options. The config's retry-exhaustion default is a per-stage
// concern; apply it with ApplyStageDefaults.
func OptionsFromConfig(cfg *config.Config) []workflow.Option {
	opts := []workflow.Option{
		workflow.WithMaxParallel(cfg.Engine.MaxParallel),
		workflow.WithRetryBackoff(cfg.Engine.RetryBackoff),
	}
	if cfg.Engine.DispatchRate > 0 {
		opts = append(opts, workflow.WithDispatchLimiter(
			rate.NewLimiter(rate.Limit(cfg.Engine.DispatchRate), 1)))
	}
	return opts
}

// ApplyStageDefaults fills per-stage policy fields left empty from the
// configuration.
func ApplyStageDefaults(stages []*workflow.Stage, cfg *config.Config) {
	if cfg.Engine.RetryExhausted == "" {
		return
	}
	for _, st := range stages {
		if st.RetryExhausted == "" {
			st.RetryExhausted = workflow.ExhaustPolicy(cfg.Engine.RetryExhausted)
		}
	}
}
