package workflow

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/witmind/conductor/types"
)

// Condition is a pure predicate over a read-only snapshot of
// accumulated results. It is evaluated exactly once per stage, the
// first time the stage's dependencies are satisfied, and never again.
// False skips the stage with zero agent invocations.
type Condition func(snap Snapshot) bool

// StageCompleted returns a condition that is true when the given stage
// finished successfully.
func StageCompleted(stageID string) Condition {
	return func(snap Snapshot) bool {
		return snap.Completed(stageID)
	}
}

// VarTrue returns a condition that is true when the named workflow
// variable is the boolean true.
func VarTrue(key string) Condition {
	return func(snap Snapshot) bool {
		v, ok := snap.Var(key)
		if !ok {
			return false
		}
		b, ok := v.(bool)
		return ok && b
	}
}

// ExprCondition compiles an expr-lang expression into a condition.
// The expression environment exposes workflow variables as top-level
// identifiers and per-stage results under "stages" (status, summary,
// output). Undefined variables resolve to nil rather than failing, so
// predicates can reference stages that never ran.
//
// Compilation errors surface at construction. A runtime evaluation
// error or a non-boolean result evaluates to false: a predicate that
// cannot be answered must not run the stage.
func ExprCondition(expression string) (Condition, error) {
	if expression == "" {
		return nil, types.NewError(types.ErrValidation, "empty condition expression")
	}
	prg, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, types.NewErrorf(types.ErrValidation,
			"compile condition %q: %s", expression, err.Error()).WithCause(err)
	}
	return exprPredicate(prg), nil
}

// MustExprCondition is ExprCondition that panics on a compile error.
// Intended for statically known expressions in template definitions.
func MustExprCondition(expression string) Condition {
	cond, err := ExprCondition(expression)
	if err != nil {
		panic(err)
	}
	return cond
}

func exprPredicate(prg *vm.Program) Condition {
	return func(snap Snapshot) bool {
		out, err := vm.Run(prg, snap.env())
		if err != nil {
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}
}
