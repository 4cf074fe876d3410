package agent

import (
	"encoding/json"

	"github.com/witmind/conductor/types"
)

// ActionType discriminates the agent action union.
type ActionType string

const (
	ActionReadFile   ActionType = "read_file"
	ActionWriteFile  ActionType = "write_file"
	ActionEditFile   ActionType = "edit_file"
	ActionRunCommand ActionType = "run_command"
	ActionAskUser    ActionType = "ask_user"
	ActionComplete   ActionType = "complete"
)

// Action is one step an agent asks its runtime to perform, decoded
// from the model's JSON envelope. The envelope is flat: a type tag
// plus the union of per-type fields, only the relevant ones set.
type Action struct {
	Type ActionType `json:"action"`

	// read_file, write_file, edit_file
	Path string `json:"path,omitempty"`
	// write_file
	Content string `json:"content,omitempty"`
	// edit_file
	OldText string `json:"old_text,omitempty"`
	NewText string `json:"new_text,omitempty"`
	// run_command
	Command string `json:"command,omitempty"`
	// ask_user
	Question string `json:"question,omitempty"`
	// complete
	Summary   string   `json:"summary,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// ParseAction decodes and validates an action envelope.
func ParseAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, types.NewError(types.ErrInvalidAction, "malformed action envelope").WithCause(err)
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// Validate checks that the per-type required fields are present.
func (a Action) Validate() error {
	switch a.Type {
	case ActionReadFile:
		if a.Path == "" {
			return types.NewError(types.ErrInvalidAction, "read_file requires path")
		}
	case ActionWriteFile:
		if a.Path == "" {
			return types.NewError(types.ErrInvalidAction, "write_file requires path")
		}
	case ActionEditFile:
		if a.Path == "" || a.OldText == "" {
			return types.NewError(types.ErrInvalidAction, "edit_file requires path and old_text")
		}
	case ActionRunCommand:
		if a.Command == "" {
			return types.NewError(types.ErrInvalidAction, "run_command requires command")
		}
	case ActionAskUser:
		if a.Question == "" {
			return types.NewError(types.ErrInvalidAction, "ask_user requires question")
		}
	case ActionComplete:
		if a.Summary == "" {
			return types.NewError(types.ErrInvalidAction, "complete requires summary")
		}
	default:
		return types.NewErrorf(types.ErrInvalidAction, "unknown action type: %q", a.Type)
	}
	return nil
}

// Terminal reports whether the action ends the agent's turn.
func (a Action) Terminal() bool {
	return a.Type == ActionComplete || a.Type == ActionAskUser
}

// Result converts a complete action into the stage's task result.
func (a Action) Result() types.TaskResult {
	return types.TaskResult{Summary: a.Summary, Artifacts: a.Artifacts}
}
