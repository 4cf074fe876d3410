package workflow

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/witmind/conductor/types"
)

// Definition is the declarative YAML form of a workflow. It mirrors the
// Stage fields one-to-one, except that conditions are expressed either
// as an expression string or as a reference to a named condition
// supplied at build time.
//
//	name: release
//	stages:
//	  - id: build
//	    agent: builder
//	    task:
//	      type: build
//	      description: Compile and package the service
//	  - id: deploy
//	    agent: deployer
//	    depends_on: [build]
//	    condition_expr: "stages.build.status == 'completed'"
//	    requires_approval: true
//	    on_error: retry
//	    max_retries: 2
type Definition struct {
	Name   string            `yaml:"name"`
	Vars   map[string]any    `yaml:"vars,omitempty"`
	Stages []StageDefinition `yaml:"stages"`
}

// StageDefinition is the YAML form of a single stage.
type StageDefinition struct {
	ID               string         `yaml:"id"`
	Agent            string         `yaml:"agent"`
	Task             types.TaskSpec `yaml:"task"`
	DependsOn        []string       `yaml:"depends_on,omitempty"`
	Condition        string         `yaml:"condition,omitempty"`
	ConditionExpr    string         `yaml:"condition_expr,omitempty"`
	ParallelGroup    string         `yaml:"parallel_group,omitempty"`
	RequiresApproval bool           `yaml:"requires_approval,omitempty"`
	ApprovalMessage  string         `yaml:"approval_message,omitempty"`
	OnError          ErrorPolicy    `yaml:"on_error,omitempty"`
	MaxRetries       int            `yaml:"max_retries,omitempty"`
	RetryExhausted   ExhaustPolicy  `yaml:"retry_exhausted,omitempty"`
}

// ParseDefinition decodes a YAML workflow definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "parse workflow definition").WithCause(err)
	}
	if len(def.Stages) == 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "workflow definition has no stages")
	}
	return &def, nil
}

// ParseDefinitionFile reads and decodes a YAML workflow definition.
func ParseDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewErrorf(types.ErrInvalidConfig, "read workflow definition: %s", path).WithCause(err)
	}
	return ParseDefinition(data)
}

// Graph materializes the definition into a validated stage graph.
// Named conditions are resolved against the given map; expression
// conditions are compiled here so that a bad predicate fails at load
// time, not mid-run. A stage may use one of condition or
// condition_expr, not both.
func (d *Definition) Graph(conditions map[string]Condition) (*Graph, error) {
	stages := make([]*Stage, 0, len(d.Stages))
	for _, sd := range d.Stages {
		st := &Stage{
			ID:               sd.ID,
			AgentID:          sd.Agent,
			Task:             sd.Task,
			DependsOn:        sd.DependsOn,
			ParallelGroup:    sd.ParallelGroup,
			RequiresApproval: sd.RequiresApproval,
			ApprovalMessage:  sd.ApprovalMessage,
			OnError:          sd.OnError,
			MaxRetries:       sd.MaxRetries,
			RetryExhausted:   sd.RetryExhausted,
		}
		if err := validatePolicies(sd); err != nil {
			return nil, err
		}
		switch {
		case sd.Condition != "" && sd.ConditionExpr != "":
			return nil, types.NewErrorf(types.ErrInvalidConfig,
				"stage %s: condition and condition_expr are mutually exclusive", sd.ID)
		case sd.Condition != "":
			cond, ok := conditions[sd.Condition]
			if !ok {
				return nil, types.NewErrorf(types.ErrInvalidConfig,
					"stage %s: unknown named condition: %s", sd.ID, sd.Condition)
			}
			st.Condition = cond
		case sd.ConditionExpr != "":
			cond, err := ExprCondition(sd.ConditionExpr)
			if err != nil {
				return nil, types.NewErrorf(types.ErrInvalidConfig,
					"stage %s: invalid condition expression", sd.ID).WithCause(err)
			}
			st.Condition = cond
		}
		stages = append(stages, st)
	}
	return NewGraph(stages...)
}

func validatePolicies(sd StageDefinition) error {
	switch sd.OnError {
	case "", PolicyStop, PolicySkip, PolicyRetry:
	default:
		return types.NewErrorf(types.ErrInvalidConfig,
			"stage %s: unknown error policy: %s", sd.ID, sd.OnError)
	}
	switch sd.RetryExhausted {
	case "", ExhaustStop, ExhaustSkip:
	default:
		return types.NewErrorf(types.ErrInvalidConfig,
			"stage %s: unknown retry exhaustion policy: %s", sd.ID, sd.RetryExhausted)
	}
	return nil
}
