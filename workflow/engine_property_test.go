package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/witmind/conductor/types"
)

// randomDAG builds an acyclic stage list: edges only point from
// earlier stages to later ones, so the graph always validates.
func randomDAG(n int, seed int64) []*Stage {
	rng := rand.New(rand.NewSource(seed))
	stages := make([]*Stage, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		var deps []string
		for j := 0; j < i; j++ {
			if rng.Intn(3) == 0 {
				deps = append(deps, fmt.Sprintf("s%d", j))
			}
		}
		st := &Stage{ID: id, AgentID: id, DependsOn: deps}
		if rng.Intn(4) == 0 {
			st.ParallelGroup = fmt.Sprintf("g%d", rng.Intn(2))
		}
		stages[i] = st
	}
	return stages
}

// orderInvoker records the order in which stages finish invoking.
type orderInvoker struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
}

func (o *orderInvoker) Invoke(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error) {
	o.mu.Lock()
	o.order = append(o.order, agentID)
	failed := o.fail[agentID]
	o.mu.Unlock()
	if failed {
		return types.TaskResult{}, errors.New("injected failure")
	}
	return types.TaskResult{Summary: agentID}, nil
}

func TestProperty_CompletionOrderRespectsDependencies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every stage is invoked after all of its dependencies", prop.ForAll(
		func(n int, seed int64) bool {
			stages := randomDAG(n, seed)
			g, err := NewGraph(stages...)
			if err != nil {
				t.Logf("graph build failed: %v", err)
				return false
			}

			inv := &orderInvoker{}
			result, err := New(g, inv).Execute(context.Background(), nil)
			if err != nil {
				t.Logf("execute failed: %v", err)
				return false
			}
			if !result.Success {
				return false
			}

			position := make(map[string]int, len(inv.order))
			for i, id := range inv.order {
				position[id] = i
			}
			for _, st := range stages {
				if result.Stages[st.ID].Status != StatusCompleted {
					t.Logf("stage %s not completed", st.ID)
					return false
				}
				for _, dep := range st.DependsOn {
					if position[dep] >= position[st.ID] {
						t.Logf("stage %s invoked before dependency %s", st.ID, dep)
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(2, 8),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_SkipFailuresLeaveEveryStageTerminal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("with skip-on-error everywhere, every stage ends terminal and the run succeeds", prop.ForAll(
		func(n int, seed int64, failSeed int64) bool {
			stages := randomDAG(n, seed)
			failRng := rand.New(rand.NewSource(failSeed))
			inv := &orderInvoker{fail: make(map[string]bool)}
			for _, st := range stages {
				st.OnError = PolicySkip
				if failRng.Intn(4) == 0 {
					inv.fail[st.ID] = true
				}
			}

			g, err := NewGraph(stages...)
			if err != nil {
				t.Logf("graph build failed: %v", err)
				return false
			}
			result, err := New(g, inv).Execute(context.Background(), nil)
			if err != nil {
				t.Logf("execute failed: %v", err)
				return false
			}
			if !result.Success {
				t.Log("skip-policy failures must not fail the workflow")
				return false
			}

			for _, st := range stages {
				r, ok := result.Stages[st.ID]
				if !ok || !r.Status.Terminal() {
					t.Logf("stage %s has no terminal outcome", st.ID)
					return false
				}
				// A stage whose dependency failed or was skipped after a
				// failure must never have run.
				for _, dep := range st.DependsOn {
					if result.Stages[dep].Status == StatusFailed && r.Status != StatusSkipped {
						t.Logf("stage %s ran despite failed dependency %s", st.ID, dep)
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(2, 8),
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
