package workflow

import "sync"

// outputsKey is the envelope key every step result is stored under, so that
// template paths read steps.<id>.outputs.<rest>.
const outputsKey = "outputs"

// ExecutionContext is the mutable per-run state: the caller's initial input
// plus every completed step's output, keyed by step id in completion order.
// One engine run exclusively owns one context; parallel branches run against
// forks that are merged back when the group settles, so writes never race.
type ExecutionContext struct {
	mu            sync.RWMutex
	workflowInput map[string]any
	stepOutputs   map[string]map[string]any
	order         []string
}

// NewExecutionContext builds a context for one run. A nil input is treated
// as an empty mapping.
func NewExecutionContext(input map[string]any) *ExecutionContext {
	if input == nil {
		input = map[string]any{}
	}
	return &ExecutionContext{
		workflowInput: input,
		stepOutputs:   make(map[string]map[string]any),
	}
}

// SetStepOutput records a step's result under {"outputs": value}. Step ids
// are unique within a run, so a repeated id replaces in place without
// disturbing completion order.
func (c *ExecutionContext) SetStepOutput(stepID string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.stepOutputs[stepID]; !exists {
		c.order = append(c.order, stepID)
	}
	c.stepOutputs[stepID] = map[string]any{outputsKey: value}
}

// StepOutput returns the stored output value for a step.
func (c *ExecutionContext) StepOutput(stepID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.stepOutputs[stepID]
	if !ok {
		return nil, false
	}
	return entry[outputsKey], true
}

// WorkflowInput returns the caller's initial input.
func (c *ExecutionContext) WorkflowInput() map[string]any {
	return c.workflowInput
}

// StepOutputs returns a copy of the step output map in its stored envelope
// form, step id → {"outputs": value}.
func (c *ExecutionContext) StepOutputs() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]any, len(c.stepOutputs))
	for id, entry := range c.stepOutputs {
		out[id] = map[string]any{outputsKey: entry[outputsKey]}
	}
	return out
}

// StepOrder returns the step ids in completion order.
func (c *ExecutionContext) StepOrder() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order := make([]string, len(c.order))
	copy(order, c.order)
	return order
}

// FinalOutput returns the output value of the last completed step, or nil
// when no step has completed.
func (c *ExecutionContext) FinalOutput() any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.order) == 0 {
		return nil
	}
	return c.stepOutputs[c.order[len(c.order)-1]][outputsKey]
}

// Len returns the number of completed steps.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.order)
}

// Fork snapshots the context for a parallel branch. The fork shares the
// immutable workflow input and copies the output map, so the branch observes
// the state as of the fork and its writes stay invisible to siblings until
// Merge.
func (c *ExecutionContext) Fork() *ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fork := &ExecutionContext{
		workflowInput: c.workflowInput,
		stepOutputs:   make(map[string]map[string]any, len(c.stepOutputs)),
		order:         make([]string, len(c.order)),
	}
	for id, entry := range c.stepOutputs {
		fork.stepOutputs[id] = entry
	}
	copy(fork.order, c.order)
	return fork
}

// Merge adopts every entry the fork added, in the fork's completion order.
// Entries already present in the receiver are left untouched.
func (c *ExecutionContext) Merge(fork *ExecutionContext) {
	fork.mu.RLock()
	forkOutputs := fork.stepOutputs
	forkOrder := fork.order
	fork.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range forkOrder {
		if _, exists := c.stepOutputs[id]; exists {
			continue
		}
		c.stepOutputs[id] = forkOutputs[id]
		c.order = append(c.order, id)
	}
}
