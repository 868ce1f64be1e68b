// Package engine interprets workflow definitions: it dispatches each step
// by its type, resolves templated inputs against the run's execution
// context, discovers the agent behind each skill, invokes it over JSON-RPC,
// and files the result so later steps can reference it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maestro-flow/maestro/pkg/a2a"
	"github.com/maestro-flow/maestro/pkg/logger"
	"github.com/maestro-flow/maestro/pkg/observability"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// Discoverer resolves skills and workflows; *discovery.Discovery satisfies
// it.
type Discoverer interface {
	FindAgentForSkill(ctx context.Context, skillID string) (string, error)
	FindWorkflow(ctx context.Context, workflowID, version string) (*workflow.Definition, error)
}

// AgentCaller invokes one skill on one agent; *a2a.Client satisfies it.
type AgentCaller interface {
	CallSkill(ctx context.Context, agentURL, skillID string, params map[string]any, timeout time.Duration) (any, error)
}

// Engine executes workflows. One engine serves many concurrent runs; each
// run owns its own ExecutionContext.
type Engine struct {
	discovery Discoverer
	agents    AgentCaller
	log       *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithAgentCaller replaces the default A2A client.
func WithAgentCaller(caller AgentCaller) Option {
	return func(e *Engine) {
		if caller != nil {
			e.agents = caller
		}
	}
}

func New(disc Discoverer, opts ...Option) *Engine {
	e := &Engine{
		discovery: disc,
		agents:    a2a.NewClient(nil),
		log:       logger.GetLogger(),
		tracer:    observability.GetTracer("maestro/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run resolves workflowID through discovery and executes it against the
// input. An empty version means the discovery default tag.
func (e *Engine) Run(ctx context.Context, workflowID string, input map[string]any, version string) (*Result, error) {
	def, err := e.discovery.FindWorkflow(ctx, workflowID, version)
	if err != nil {
		return nil, err
	}
	return e.RunDefinition(ctx, def, input)
}

// RunDefinition executes an already-loaded definition. The returned Result
// is non-nil even on failure and carries the partial context.
func (e *Engine) RunDefinition(ctx context.Context, def *workflow.Definition, input map[string]any) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.id", def.Metadata.ID),
			attribute.String("workflow.version", def.Metadata.Version),
		))
	defer span.End()

	e.log.Info("workflow run started",
		"workflow", def.Metadata.ID,
		"version", def.Metadata.Version,
		"steps", len(def.Steps))

	ec := workflow.NewExecutionContext(input)
	start := time.Now()
	err := e.executeSteps(ctx, def.Steps, ec)
	observability.GetGlobalMetrics().RecordWorkflowRun(ctx, def.Metadata.ID, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		e.log.Error("workflow run failed",
			"workflow", def.Metadata.ID,
			"completed_steps", ec.Len(),
			"error", err)
	} else {
		e.log.Info("workflow run completed",
			"workflow", def.Metadata.ID,
			"completed_steps", ec.Len(),
			"duration", time.Since(start))
	}

	return buildResult(def, input, ec), err
}

// executeSteps runs a step sequence in order, halting on the first failure.
// Step i+1 begins strictly after step i has stored its output.
func (e *Engine) executeSteps(ctx context.Context, steps []*workflow.Step, ec *workflow.ExecutionContext) error {
	for _, step := range steps {
		if err := e.executeStep(ctx, step, ec); err != nil {
			return err
		}
	}
	return nil
}

// executeStep dispatches one step by its type.
func (e *Engine) executeStep(ctx context.Context, step *workflow.Step, ec *workflow.ExecutionContext) error {
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("step.id", step.ID),
			attribute.String("step.type", step.StepType),
		))
	defer span.End()

	start := time.Now()
	var err error
	switch step.StepType {
	case workflow.StepTypeSequential:
		err = e.executeLeaf(ctx, step, ec)
	case workflow.StepTypeParallel:
		err = e.executeParallel(ctx, step, ec)
	case workflow.StepTypeConditional:
		err = e.executeConditional(ctx, step, ec)
	case workflow.StepTypeSwitch:
		err = e.executeSwitch(ctx, step, ec)
	default:
		// Unreachable after validation.
		err = fmt.Errorf("step %q has unknown type %q", step.ID, step.StepType)
	}
	observability.GetGlobalMetrics().RecordStep(ctx, step.StepType, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
	}
	return err
}

// executeLeaf resolves the step's inputs, discovers the agent for its
// skill, calls it, and stores the result. When the step declares an outputs
// name the result is wrapped as {<name>: result} before storing.
func (e *Engine) executeLeaf(ctx context.Context, step *workflow.Step, ec *workflow.ExecutionContext) error {
	params := ec.ResolveInputs(step.Inputs)

	agentURL, err := e.discovery.FindAgentForSkill(ctx, step.Skill)
	if err != nil {
		return fmt.Errorf("step %q: %w", step.ID, err)
	}

	timeout := step.TimeoutDuration()
	e.log.Debug("calling agent",
		"step", step.ID,
		"skill", step.Skill,
		"agent_url", agentURL,
		"timeout", timeout)

	result, err := e.agents.CallSkill(ctx, agentURL, step.Skill, params, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &StepTimeoutError{StepID: step.ID, Timeout: timeout, Err: err}
		}
		return fmt.Errorf("step %q: %w", step.ID, err)
	}

	value := result
	if step.Outputs != "" {
		value = map[string]any{step.Outputs: result}
	}
	ec.SetStepOutput(step.ID, value)
	return nil
}
