package types

// TaskSpec describes the work handed to an agent for a single stage.
// The engine treats it as an opaque payload; the fields exist so that
// callers and invokers share one shape for the common case.
type TaskSpec struct {
	// Type categorizes the task (e.g. "analyze_requirements").
	Type string `json:"type" yaml:"type"`
	// Description is a human-readable summary of the work.
	Description string `json:"description" yaml:"description"`
	// Inputs lists artifacts the agent should read before working.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// ExpectedOutputs lists artifacts the agent is expected to produce.
	ExpectedOutputs []string `json:"expected_outputs,omitempty" yaml:"expected_outputs,omitempty"`
	// Params carries free-form task parameters.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// TaskResult is the output of a successful agent invocation.
// Opaque to the engine beyond being stored and exposed to conditions.
type TaskResult struct {
	// Summary is a short human-readable description of what was done.
	Summary string `json:"summary,omitempty"`
	// Output carries the structured result payload, if any.
	Output any `json:"output,omitempty"`
	// Artifacts lists paths or identifiers of produced deliverables.
	Artifacts []string `json:"artifacts,omitempty"`
}
