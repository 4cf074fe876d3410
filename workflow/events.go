package workflow

import "time"

// EventType defines the type of an execution event.
type EventType string

const (
	// EventWorkflowStart is emitted once when Execute begins.
	EventWorkflowStart EventType = "workflow_start"
	// EventWorkflowFinish is emitted once when Execute returns a result.
	EventWorkflowFinish EventType = "workflow_finish"
	// EventStageStart is emitted when a stage transitions to running.
	EventStageStart EventType = "stage_start"
	// EventStageComplete is emitted when a stage's agent finishes successfully.
	EventStageComplete EventType = "stage_complete"
	// EventStageFailed is emitted when a stage fails terminally.
	EventStageFailed EventType = "stage_failed"
	// EventStageSkipped is emitted when a stage is skipped: condition
	// false, approval denied, or cascaded from a Skip-policy failure.
	EventStageSkipped EventType = "stage_skipped"
	// EventStageAwaitingApproval is emitted while a stage blocks on a
	// human decision.
	EventStageAwaitingApproval EventType = "stage_awaiting_approval"
	// EventStageRetry is emitted before a failed stage is re-dispatched.
	EventStageRetry EventType = "stage_retry"
)

// Event carries information about one execution transition. Events are
// delivered synchronously on the worker that produced them; emitters
// that need buffering add their own.
type Event struct {
	Type    EventType   `json:"type"`
	RunID   string      `json:"run_id"`
	StageID string      `json:"stage_id,omitempty"`
	AgentID string      `json:"agent_id,omitempty"`
	Status  StageStatus `json:"status,omitempty"`
	// Attempt is the 1-based invocation attempt for retry events.
	Attempt int `json:"attempt,omitempty"`
	// Reason explains skip events (condition, approval, cascade).
	Reason string    `json:"reason,omitempty"`
	Err    error     `json:"-"`
	Time   time.Time `json:"time"`
}

// Skip reasons carried on EventStageSkipped.
const (
	SkipReasonCondition = "condition_false"
	SkipReasonApproval  = "approval_denied"
	SkipReasonCascade   = "dependency_failed"
)

// EventEmitter receives execution events. Emitters run inline with
// scheduling and must not block.
type EventEmitter func(Event)
