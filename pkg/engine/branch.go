package engine

import (
	"context"

	"github.com/maestro-flow/maestro/pkg/workflow"
)

// executeConditional resolves the condition and runs the if_true or
// if_false sequence, each child updating the context in turn. An absent
// branch is an empty sequence.
func (e *Engine) executeConditional(ctx context.Context, step *workflow.Step, ec *workflow.ExecutionContext) error {
	value := ec.Resolve(step.Condition)
	truthy := workflow.Truthy(value)

	e.log.Debug("conditional evaluated", "step", step.ID, "condition", step.Condition, "truthy", truthy)
	return e.executeSteps(ctx, step.ConditionalBranch(truthy), ec)
}

// executeSwitch stringifies the resolved condition and runs the matching
// case, preferring an exact match over "default". With neither present the
// step is a no-op and the run continues.
func (e *Engine) executeSwitch(ctx context.Context, step *workflow.Step, ec *workflow.ExecutionContext) error {
	value := workflow.Stringify(ec.Resolve(step.Condition))

	branch, ok := step.SwitchBranch(value)
	if !ok {
		e.log.Debug("switch matched nothing", "step", step.ID, "value", value)
		return nil
	}

	e.log.Debug("switch matched", "step", step.ID, "value", value)
	return e.executeSteps(ctx, branch, ec)
}
