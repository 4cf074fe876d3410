package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witmind/conductor/types"
	"github.com/witmind/conductor/workflow"
)

func echoAgent(id string) Agent {
	return Func{
		AgentID: id,
		Fn: func(ctx context.Context, task types.TaskSpec, results workflow.Snapshot) (types.TaskResult, error) {
			return types.TaskResult{Summary: id + ": " + task.Description}, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)

	require.NoError(t, r.Register(echoAgent("coder")))
	require.NoError(t, r.Register(echoAgent("reviewer")))
	assert.Equal(t, []string{"coder", "reviewer"}, r.IDs())

	err := r.Register(echoAgent("coder"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(Func{AgentID: ""}))
}

func TestRegistry_Invoke(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoAgent("coder")))

	out, err := r.Invoke(context.Background(), "coder",
		types.TaskSpec{Description: "write the parser"}, workflow.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, "coder: write the parser", out.Summary)
}

func TestRegistry_Invoke_UnknownAgent(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	_, err := r.Invoke(context.Background(), "ghost", types.TaskSpec{}, workflow.Snapshot{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))
}

func TestRegistry_Invoke_AgentError(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	boom := errors.New("model unavailable")
	require.NoError(t, r.Register(Func{
		AgentID: "flaky",
		Fn: func(ctx context.Context, task types.TaskSpec, results workflow.Snapshot) (types.TaskResult, error) {
			return types.TaskResult{}, boom
		},
	}))

	_, err := r.Invoke(context.Background(), "flaky", types.TaskSpec{}, workflow.Snapshot{})
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_DrivesWorkflow(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	require.NoError(t, r.Register(echoAgent("planner")))
	require.NoError(t, r.Register(echoAgent("builder")))

	g, err := workflow.NewGraph(
		&workflow.Stage{ID: "plan", AgentID: "planner", Task: types.TaskSpec{Description: "plan it"}},
		&workflow.Stage{ID: "build", AgentID: "builder", DependsOn: []string{"plan"}, Task: types.TaskSpec{Description: "build it"}},
	)
	require.NoError(t, err)

	result, err := workflow.New(g, r).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "builder: build it", result.Stages["build"].Output.Summary)
}

func TestRegistry_UnknownAgentHaltsWorkflow(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	g, err := workflow.NewGraph(&workflow.Stage{ID: "a", AgentID: "ghost"})
	require.NoError(t, err)

	result, err := workflow.New(g, r).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "a", result.FailedStage)
}
