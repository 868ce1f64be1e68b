package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/maestro-flow/maestro/pkg/workflow"
)

// executeParallel runs the children of a parallel step concurrently. Every
// child executes against its own fork of the context, so each observes the
// state as of the moment the group started and no sibling's writes. When the
// group settles, the forks merge back so the next sequential step sees every
// child's output. A failing child fails the whole step and cancels its
// in-flight siblings; outputs of children that completed first are kept.
func (e *Engine) executeParallel(ctx context.Context, step *workflow.Step, ec *workflow.ExecutionContext) error {
	children := step.ParallelSteps()
	if len(children) == 0 {
		return nil
	}

	e.log.Debug("parallel fan-out", "step", step.ID, "children", len(children))

	g, gctx := errgroup.WithContext(ctx)
	forks := make([]*workflow.ExecutionContext, len(children))
	for i, child := range children {
		fork := ec.Fork()
		forks[i] = fork
		g.Go(func() error {
			return e.executeStep(gctx, child, fork)
		})
	}

	err := g.Wait()
	for _, fork := range forks {
		ec.Merge(fork)
	}
	if err != nil {
		return fmt.Errorf("parallel step %q: %w", step.ID, err)
	}
	return nil
}
