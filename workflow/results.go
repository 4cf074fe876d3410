package workflow

import (
	"sync"
	"time"

	"github.com/witmind/conductor/types"
)

// StageResult records the outcome of a single stage.
type StageResult struct {
	Status      StageStatus      `json:"status"`
	Output      types.TaskResult `json:"output,omitempty"`
	Err         error            `json:"-"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	// Attempts counts agent invocations, including retries. Zero for
	// stages that were skipped without being invoked.
	Attempts int `json:"attempts"`
}

// ResultStore is the synchronized record of stage outcomes. It is the
// only shared state written concurrently (by workers within a parallel
// group) and is read-only to conditions, invokers, and the final
// workflow result.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]StageResult
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]StageResult)}
}

func (s *ResultStore) set(stageID string, r StageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[stageID] = r
}

// Get retrieves the recorded outcome for a stage.
func (s *ResultStore) Get(stageID string) (StageResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[stageID]
	return r, ok
}

// Len returns the number of recorded outcomes.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Snapshot returns an immutable copy of the store combined with the
// workflow variables. Snapshots are what conditions and agent
// invocations see; later writes to the store do not leak into them.
func (s *ResultStore) Snapshot(vars map[string]any) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make(map[string]StageResult, len(s.results))
	for id, r := range s.results {
		results[id] = r
	}
	return Snapshot{Results: results, Vars: vars}
}

// Snapshot is a read-only view of accumulated stage results plus the
// workflow variables, taken at a single point in time.
type Snapshot struct {
	Results map[string]StageResult
	Vars    map[string]any
}

// Completed reports whether the given stage finished successfully.
func (s Snapshot) Completed(stageID string) bool {
	r, ok := s.Results[stageID]
	return ok && r.Status == StatusCompleted
}

// Status returns the recorded status of a stage, or StatusPending when
// the stage has no recorded outcome yet.
func (s Snapshot) Status(stageID string) StageStatus {
	if r, ok := s.Results[stageID]; ok {
		return r.Status
	}
	return StatusPending
}

// Output returns the task result of a completed stage.
func (s Snapshot) Output(stageID string) (types.TaskResult, bool) {
	r, ok := s.Results[stageID]
	if !ok || r.Status != StatusCompleted {
		return types.TaskResult{}, false
	}
	return r.Output, true
}

// Var looks up a workflow variable.
func (s Snapshot) Var(key string) (any, bool) {
	v, ok := s.Vars[key]
	return v, ok
}

// env flattens the snapshot into the environment map exposed to
// expression conditions: workflow variables at the top level plus a
// "stages" map of per-stage status and output.
func (s Snapshot) env() map[string]any {
	env := make(map[string]any, len(s.Vars)+1)
	for k, v := range s.Vars {
		env[k] = v
	}
	stages := make(map[string]any, len(s.Results))
	for id, r := range s.Results {
		stages[id] = map[string]any{
			"status":  string(r.Status),
			"summary": r.Output.Summary,
			"output":  r.Output.Output,
		}
	}
	env["stages"] = stages
	return env
}
