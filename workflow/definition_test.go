package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witmind/conductor/types"
)

const sampleDefinition = `
name: release
vars:
  env: production
stages:
  - id: build
    agent: builder
    task:
      type: build
      description: Compile and package
  - id: test
    agent: tester
    depends_on: [build]
    parallel_group: verify
    on_error: retry
    max_retries: 2
    retry_exhausted: skip
  - id: lint
    agent: linter
    depends_on: [build]
    parallel_group: verify
    on_error: skip
  - id: deploy
    agent: deployer
    depends_on: [test, lint]
    condition_expr: 'env == "production"'
    requires_approval: true
    approval_message: Ship to production?
`

func TestParseDefinition(t *testing.T) {
	t.Parallel()
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	assert.Equal(t, "release", def.Name)
	assert.Equal(t, "production", def.Vars["env"])
	require.Len(t, def.Stages, 4)

	testStage := def.Stages[1]
	assert.Equal(t, "tester", testStage.Agent)
	assert.Equal(t, PolicyRetry, testStage.OnError)
	assert.Equal(t, 2, testStage.MaxRetries)
	assert.Equal(t, ExhaustSkip, testStage.RetryExhausted)

	deploy := def.Stages[3]
	assert.True(t, deploy.RequiresApproval)
	assert.Equal(t, "Ship to production?", deploy.ApprovalMessage)
}

func TestParseDefinition_Invalid(t *testing.T) {
	t.Parallel()
	_, err := ParseDefinition([]byte("stages: [not a stage"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))

	_, err = ParseDefinition([]byte("name: empty"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stages")
}

func TestParseDefinitionFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "release.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinition), 0o644))

	def, err := ParseDefinitionFile(path)
	require.NoError(t, err)
	assert.Equal(t, "release", def.Name)

	_, err = ParseDefinitionFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))
}

func TestDefinition_Graph(t *testing.T) {
	t.Parallel()
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	g, err := def.Graph(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	deploy, ok := g.Stage("deploy")
	require.True(t, ok)
	assert.Equal(t, "deployer", deploy.AgentID)
	assert.NotNil(t, deploy.Condition)
	assert.True(t, deploy.Condition(snapWith(nil, map[string]any{"env": "production"})))
	assert.False(t, deploy.Condition(snapWith(nil, map[string]any{"env": "staging"})))
}

func TestDefinition_Graph_NamedCondition(t *testing.T) {
	t.Parallel()
	def, err := ParseDefinition([]byte(`
stages:
  - id: a
    agent: x
  - id: b
    agent: y
    depends_on: [a]
    condition: upstream_ok
`))
	require.NoError(t, err)

	_, err = def.Graph(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown named condition")

	g, err := def.Graph(map[string]Condition{"upstream_ok": StageCompleted("a")})
	require.NoError(t, err)
	b, _ := g.Stage("b")
	assert.NotNil(t, b.Condition)
}

func TestDefinition_Graph_Invalid(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"both condition forms": `
stages:
  - id: a
    agent: x
    condition: named
    condition_expr: "true"
`,
		"bad expression": `
stages:
  - id: a
    agent: x
    condition_expr: "(("
`,
		"bad error policy": `
stages:
  - id: a
    agent: x
    on_error: explode
`,
		"bad exhaust policy": `
stages:
  - id: a
    agent: x
    retry_exhausted: shrug
`,
		"unknown dependency": `
stages:
  - id: a
    agent: x
    depends_on: [ghost]
`,
	}
	for name, yml := range cases {
		yml := yml
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			def, err := ParseDefinition([]byte(yml))
			require.NoError(t, err)
			_, err = def.Graph(map[string]Condition{})
			assert.Error(t, err)
		})
	}
}

func TestDefinition_Graph_Executes(t *testing.T) {
	t.Parallel()
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)
	g, err := def.Graph(nil)
	require.NoError(t, err)

	inv := InvokerFunc(func(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error) {
		return types.TaskResult{Summary: agentID}, nil
	})
	e := New(g, inv, WithVariables(def.Vars))

	result, err := e.Execute(context.Background(), AutoApprove)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, StatusCompleted, result.Stages["deploy"].Status)
}
