package workflow

import (
	"strings"

	"github.com/witmind/conductor/types"
)

// Graph owns the stage set of a workflow. It validates identity and
// acyclicity at construction and computes the ready set during
// execution. Stages are kept in insertion order so that scheduling is
// deterministic in non-parallel contexts.
type Graph struct {
	stages map[string]*Stage
	order  []string
	// dependents maps a stage ID to the IDs of stages that depend on it.
	dependents map[string][]string
}

// NewGraph indexes the given stages and validates the whole set:
// duplicate IDs, unknown dependencies, and cycles all fail with a
// structured validation error before any execution.
func NewGraph(stages ...*Stage) (*Graph, error) {
	g := &Graph{
		stages:     make(map[string]*Stage, len(stages)),
		dependents: make(map[string][]string),
	}
	for _, st := range stages {
		if st == nil {
			return nil, types.NewError(types.ErrValidation, "stage cannot be nil")
		}
		if st.ID == "" {
			return nil, types.NewError(types.ErrValidation, "stage ID cannot be empty")
		}
		if _, exists := g.stages[st.ID]; exists {
			return nil, types.NewErrorf(types.ErrDuplicateStage, "duplicate stage ID: %s", st.ID)
		}
		g.stages[st.ID] = st
		g.order = append(g.order, st.ID)
	}
	for _, id := range g.order {
		st := g.stages[id]
		if st.MaxRetries < 0 {
			return nil, types.NewErrorf(types.ErrValidation, "stage %s: max retries must be >= 0", id)
		}
		for _, dep := range st.DependsOn {
			if _, exists := g.stages[dep]; !exists {
				return nil, types.NewErrorf(types.ErrUnknownDependency,
					"stage %s depends on unknown stage: %s", id, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, types.NewErrorf(types.ErrCycleDetected,
			"dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	return g, nil
}

// AddStage appends a stage to an existing graph. The stage's
// dependencies must already be present; forward references fail with a
// validation error, which keeps the graph acyclic by construction.
func (g *Graph) AddStage(st *Stage) error {
	if st == nil {
		return types.NewError(types.ErrValidation, "stage cannot be nil")
	}
	if st.ID == "" {
		return types.NewError(types.ErrValidation, "stage ID cannot be empty")
	}
	if _, exists := g.stages[st.ID]; exists {
		return types.NewErrorf(types.ErrDuplicateStage, "duplicate stage ID: %s", st.ID)
	}
	if st.MaxRetries < 0 {
		return types.NewErrorf(types.ErrValidation, "stage %s: max retries must be >= 0", st.ID)
	}
	for _, dep := range st.DependsOn {
		if _, exists := g.stages[dep]; !exists {
			return types.NewErrorf(types.ErrUnknownDependency,
				"stage %s depends on unknown stage: %s", st.ID, dep)
		}
	}
	g.stages[st.ID] = st
	g.order = append(g.order, st.ID)
	for _, dep := range st.DependsOn {
		g.dependents[dep] = append(g.dependents[dep], st.ID)
	}
	return nil
}

// Stage retrieves a stage by ID.
func (g *Graph) Stage(id string) (*Stage, bool) {
	st, ok := g.stages[id]
	return st, ok
}

// Stages returns all stages in insertion order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.stages[id])
	}
	return out
}

// Len returns the number of stages in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// ReadyStages returns, in insertion order, all pending stages whose
// every dependency is completed or skipped. A skipped dependency
// satisfies readiness: it is a deliberate no-op, not a failure.
func (g *Graph) ReadyStages() []*Stage {
	var ready []*Stage
	for _, id := range g.order {
		st := g.stages[id]
		if st.Status() != StatusPending {
			continue
		}
		if g.depsSatisfied(st) {
			ready = append(ready, st)
		}
	}
	return ready
}

// PendingIDs returns the IDs of all stages still pending, in insertion order.
func (g *Graph) PendingIDs() []string {
	var pending []string
	for _, id := range g.order {
		if g.stages[id].Status() == StatusPending {
			pending = append(pending, id)
		}
	}
	return pending
}

// Dependents returns the IDs of stages that directly depend on the
// given stage, in insertion order.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

func (g *Graph) depsSatisfied(st *Stage) bool {
	for _, dep := range st.DependsOn {
		switch g.stages[dep].Status() {
		case StatusCompleted, StatusSkipped:
		default:
			return false
		}
	}
	return true
}

// Group is a set of ready stages eligible to run concurrently.
type Group struct {
	// Name is the parallel tag, or the stage ID for singleton groups.
	Name string
	// Stages are the group members in insertion order.
	Stages []*Stage
}

// GroupReady buckets ready stages by parallel tag. Stages without a
// tag become singleton groups and execute alone. Group order follows
// the first appearance of each tag in the ready list.
func (g *Graph) GroupReady(ready []*Stage) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, st := range ready {
		if st.ParallelGroup == "" {
			groups = append(groups, Group{Name: st.ID, Stages: []*Stage{st}})
			continue
		}
		if i, ok := index[st.ParallelGroup]; ok {
			groups[i].Stages = append(groups[i].Stages, st)
			continue
		}
		index[st.ParallelGroup] = len(groups)
		groups = append(groups, Group{Name: st.ParallelGroup, Stages: []*Stage{st}})
	}
	return groups
}

// findCycle runs a DFS over the dependency edges and returns the first
// cycle found as a stage ID path (closed: first element repeated at the
// end), or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.stages))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = inStack
		stack = append(stack, id)
		for _, dep := range g.stages[id].DependsOn {
			switch state[dep] {
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case inStack:
				// Close the loop from the first occurrence of dep.
				for i, v := range stack {
					if v == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
