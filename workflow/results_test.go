package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witmind/conductor/types"
)

func TestResultStore_SetAndGet(t *testing.T) {
	t.Parallel()
	s := NewResultStore()

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	s.set("a", StageResult{Status: StatusCompleted, Output: types.TaskResult{Summary: "done"}})
	r, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 1, s.Len())
}

func TestResultStore_SnapshotIsImmutable(t *testing.T) {
	t.Parallel()
	s := NewResultStore()
	s.set("a", StageResult{Status: StatusCompleted})

	snap := s.Snapshot(map[string]any{"env": "prod"})
	s.set("b", StageResult{Status: StatusFailed})

	// Writes after the snapshot do not leak into it.
	assert.Len(t, snap.Results, 1)
	assert.Equal(t, StatusPending, snap.Status("b"))
	v, ok := snap.Var("env")
	require.True(t, ok)
	assert.Equal(t, "prod", v)
}

func TestSnapshot_Accessors(t *testing.T) {
	t.Parallel()
	snap := snapWith(map[string]StageResult{
		"ok":   {Status: StatusCompleted, Output: types.TaskResult{Summary: "fine"}},
		"bad":  {Status: StatusFailed},
		"skip": {Status: StatusSkipped},
	}, nil)

	assert.True(t, snap.Completed("ok"))
	assert.False(t, snap.Completed("bad"))
	assert.False(t, snap.Completed("missing"))

	assert.Equal(t, StatusSkipped, snap.Status("skip"))
	assert.Equal(t, StatusPending, snap.Status("missing"))

	out, ok := snap.Output("ok")
	require.True(t, ok)
	assert.Equal(t, "fine", out.Summary)
	_, ok = snap.Output("bad")
	assert.False(t, ok)
}

func TestSnapshot_EnvFlattening(t *testing.T) {
	t.Parallel()
	snap := snapWith(map[string]StageResult{
		"build": {Status: StatusCompleted, Output: types.TaskResult{Summary: "built", Output: 42}},
	}, map[string]any{"env": "prod"})

	env := snap.env()
	assert.Equal(t, "prod", env["env"])

	stages, ok := env["stages"].(map[string]any)
	require.True(t, ok)
	build, ok := stages["build"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "completed", build["status"])
	assert.Equal(t, "built", build["summary"])
	assert.Equal(t, 42, build["output"])
}
