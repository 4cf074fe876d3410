package conductor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witmind/conductor/config"
	"github.com/witmind/conductor/types"
	"github.com/witmind/conductor/workflow"
)

func okInvoker() InvokerFunc {
	return func(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error) {
		return types.TaskResult{Summary: agentID}, nil
	}
}

func TestNew_InvalidGraph(t *testing.T) {
	t.Parallel()
	_, err := New([]*Stage{{ID: "a", DependsOn: []string{"a"}}}, okInvoker())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCycleDetected))
}

func TestRun(t *testing.T) {
	t.Parallel()
	stages := []*Stage{
		{ID: "plan", AgentID: "planner"},
		{ID: "build", AgentID: "builder", DependsOn: []string{"plan"}},
	}
	result, err := Run(context.Background(), stages, okInvoker(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Stages, 2)
}

func TestLoadGraph(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: demo
stages:
  - id: a
    agent: x
  - id: b
    agent: y
    depends_on: [a]
`), 0o644))

	g, err := LoadGraph(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	result, err := workflow.New(g, okInvoker()).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Engine.DispatchRate = 100

	opts := OptionsFromConfig(cfg)
	assert.Len(t, opts, 3)

	stages := []*Stage{{ID: "a", AgentID: "x"}}
	result, err := Run(context.Background(), stages, okInvoker(), nil, opts...)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestApplyStageDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Engine.RetryExhausted = "skip"

	explicit := &Stage{ID: "a", RetryExhausted: workflow.ExhaustStop}
	blank := &Stage{ID: "b"}
	ApplyStageDefaults([]*Stage{explicit, blank}, cfg)

	assert.Equal(t, workflow.ExhaustStop, explicit.RetryExhausted)
	assert.Equal(t, workflow.ExhaustSkip, blank.RetryExhausted)
}

func TestRun_WithRetryBackoffOption(t *testing.T) {
	t.Parallel()
	attempts := 0
	inv := InvokerFunc(func(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error) {
		attempts++
		if attempts == 1 {
			return types.TaskResult{}, assert.AnError
		}
		return types.TaskResult{Summary: "ok"}, nil
	})
	stages := []*Stage{{ID: "a", AgentID: "x", OnError: PolicyRetry, MaxRetries: 1}}

	start := time.Now()
	result, err := Run(context.Background(), stages, inv, nil, WithRetryBackoff(20*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
