package workflow

import (
	"time"

	"github.com/witmind/conductor/types"
)

// StageStatus defines the lifecycle state of a stage.
type StageStatus string

const (
	// StatusPending means the stage has not been dispatched yet.
	StatusPending StageStatus = "pending"
	// StatusAwaitingApproval means the stage is blocked on a human decision.
	StatusAwaitingApproval StageStatus = "awaiting_approval"
	// StatusRunning means the stage's agent invocation is in flight.
	StatusRunning StageStatus = "running"
	// StatusCompleted means the agent finished successfully. Terminal.
	StatusCompleted StageStatus = "completed"
	// StatusFailed means the agent failed and the error policy did not
	// recover the stage. Terminal.
	StatusFailed StageStatus = "failed"
	// StatusSkipped means the stage was never invoked: its condition was
	// false, approval was denied, or a Skip-policy dependency failed.
	// Terminal.
	StatusSkipped StageStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions.
func (s StageStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ErrorPolicy defines how an agent invocation failure is handled.
type ErrorPolicy string

const (
	// PolicyStop fails the stage and halts scheduling of new stages.
	PolicyStop ErrorPolicy = "stop"
	// PolicySkip fails the stage, skips its transitive dependents, and
	// lets the rest of the workflow continue.
	PolicySkip ErrorPolicy = "skip"
	// PolicyRetry re-dispatches the stage until MaxRetries is exhausted.
	PolicyRetry ErrorPolicy = "retry"
)

// ExhaustPolicy defines what a Retry stage escalates to once
// MaxRetries is spent.
type ExhaustPolicy string

const (
	// ExhaustStop escalates exhausted retries to PolicyStop behavior.
	// This is the default.
	ExhaustStop ExhaustPolicy = "stop"
	// ExhaustSkip escalates exhausted retries to PolicySkip behavior.
	ExhaustSkip ExhaustPolicy = "skip"
)

// Stage is one unit of work bound to a single agent invocation
// (plus retries). The caller constructs and owns the stage list; the
// engine owns status and result mutation during Execute.
type Stage struct {
	// ID uniquely identifies the stage within its graph.
	ID string
	// AgentID is an opaque reference to an external agent.
	AgentID string
	// Task is the payload handed to the agent; opaque to the engine.
	Task types.TaskSpec
	// DependsOn lists stage IDs that must be completed or skipped
	// before this stage becomes ready.
	DependsOn []string
	// Condition, when set, is evaluated exactly once the first time the
	// stage's dependencies are satisfied. False skips the stage with
	// zero invocations.
	Condition Condition
	// ParallelGroup tags stages that may run concurrently once
	// individually ready. Empty means the stage runs alone.
	ParallelGroup string
	// RequiresApproval gates the stage behind a human decision.
	RequiresApproval bool
	// ApprovalMessage is shown to the approver. Optional.
	ApprovalMessage string
	// OnError selects the failure policy. Empty defaults to PolicyStop.
	OnError ErrorPolicy
	// MaxRetries bounds retry attempts. Only meaningful under PolicyRetry.
	MaxRetries int
	// RetryExhausted selects the escalation once retries are spent.
	// Empty defaults to ExhaustStop.
	RetryExhausted ExhaustPolicy

	// Engine-owned state. Each worker writes only the stage it owns;
	// the engine serializes cross-stage writes (cascading skip).
	status      StageStatus
	retryCount  int
	startedAt   time.Time
	completedAt time.Time
}

// Status returns the stage's current lifecycle state.
func (s *Stage) Status() StageStatus {
	if s.status == "" {
		return StatusPending
	}
	return s.status
}

// RetryCount returns how many retries the stage has consumed.
func (s *Stage) RetryCount() int {
	return s.retryCount
}

// errorPolicy resolves the configured policy, defaulting to Stop.
func (s *Stage) errorPolicy() ErrorPolicy {
	if s.OnError == "" {
		return PolicyStop
	}
	return s.OnError
}

// exhaustPolicy resolves the exhausted-retry escalation, defaulting to Stop.
func (s *Stage) exhaustPolicy() ExhaustPolicy {
	if s.RetryExhausted == "" {
		return ExhaustStop
	}
	return s.RetryExhausted
}

// Descriptor returns the read-only view of the stage handed to
// approval callbacks and events.
func (s *Stage) Descriptor() StageDescriptor {
	return StageDescriptor{
		ID:            s.ID,
		AgentID:       s.AgentID,
		ParallelGroup: s.ParallelGroup,
		Task:          s.Task,
	}
}

// StageDescriptor is an immutable summary of a stage, used where the
// engine must expose stage identity without handing out mutable state.
type StageDescriptor struct {
	ID            string
	AgentID       string
	ParallelGroup string
	Task          types.TaskSpec
}
