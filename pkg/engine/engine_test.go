package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/a2a"
	"github.com/maestro-flow/maestro/pkg/discovery"
	"github.com/maestro-flow/maestro/pkg/engine"
	"github.com/maestro-flow/maestro/pkg/oci"
	"github.com/maestro-flow/maestro/pkg/oci/ocitest"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// startStubAgent hosts the given skills on one in-process A2A agent and
// returns its base URL.
func startStubAgent(t *testing.T, skills map[string]a2a.HandlerFunc) string {
	t.Helper()

	agent := a2a.NewAgent("stub", "1.0.0")
	for id, fn := range skills {
		require.NoError(t, agent.AddSkill(id, "", nil, nil, fn))
	}

	server := a2a.NewServer(nil)
	require.NoError(t, server.RegisterAgent(agent))

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts.URL
}

// stubDiscovery maps every skill to one agent URL without a registry.
type stubDiscovery struct {
	agentURL  string
	workflows map[string]*workflow.Definition
}

func (s *stubDiscovery) FindAgentForSkill(ctx context.Context, skillID string) (string, error) {
	return s.agentURL, nil
}

func (s *stubDiscovery) FindWorkflow(ctx context.Context, workflowID, version string) (*workflow.Definition, error) {
	def, ok := s.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, discovery.ErrNotFound)
	}
	return def, nil
}

func newEngine(t *testing.T, agentURL string) *engine.Engine {
	t.Helper()
	return engine.New(&stubDiscovery{agentURL: agentURL})
}

func loadDefinition(t *testing.T, yamlDoc string) *workflow.Definition {
	t.Helper()
	def, err := workflow.Load([]byte(yamlDoc))
	require.NoError(t, err)
	return def
}

func echo(value string) a2a.HandlerFunc {
	return func(ctx context.Context, params map[string]any) (any, error) {
		return value, nil
	}
}

func TestRun_SequentialPipeline(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"a": echo("A"),
		"b": func(ctx context.Context, params map[string]any) (any, error) {
			return "B(" + cast.ToString(params["x"]) + ")", nil
		},
		"c": func(ctx context.Context, params map[string]any) (any, error) {
			return "C(" + cast.ToString(params["y"]) + ")", nil
		},
	})

	def := loadDefinition(t, `
metadata: {id: test-seq, name: Sequential, version: 1.0.0}
steps:
  - id: S1
    skill: a
    outputs: r
  - id: S2
    skill: b
    inputs: {x: "{{steps.S1.outputs.r}}"}
    outputs: r
  - id: S3
    skill: c
    inputs: {y: "{{steps.S2.outputs.r}}"}
`)

	result, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]map[string]any{
		"S1": {"outputs": map[string]any{"r": "A"}},
		"S2": {"outputs": map[string]any{"r": "B(A)"}},
		"S3": {"outputs": "C(B(A))"},
	}, result.StepOutputs)
	assert.Equal(t, "C(B(A))", result.FinalOutput)
	assert.Equal(t, "test-seq", result.WorkflowID)
}

func TestRun_ParallelFanOut(t *testing.T) {
	var aggParams map[string]any
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"q": echo("quality-report"),
		"s": echo("style-report"),
		"agg": func(ctx context.Context, params map[string]any) (any, error) {
			aggParams = params
			return "merged", nil
		},
	})

	def := loadDefinition(t, `
metadata: {id: fan-out, name: Fan Out, version: 1.0.0}
steps:
  - id: reviews
    step_type: parallel
    branches:
      steps:
        - {id: Q, skill: q, outputs: qo}
        - {id: S, skill: s, outputs: so}
  - id: AGG
    skill: agg
    inputs:
      q: "{{steps.Q.outputs.qo}}"
      s: "{{steps.S.outputs.so}}"
`)

	result, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"q": "quality-report",
		"s": "style-report",
	}, aggParams, "aggregation receives exactly the two branch outputs")

	assert.Contains(t, result.StepOutputs, "Q")
	assert.Contains(t, result.StepOutputs, "S")
	assert.NotContains(t, result.StepOutputs, "reviews", "composite steps store no aggregate output")
}

func TestRun_ParallelSiblingIsolation(t *testing.T) {
	var leftSaw any
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"left": func(ctx context.Context, params map[string]any) (any, error) {
			leftSaw = params["peek"]
			return "L", nil
		},
		"right": echo("R"),
	})

	def := loadDefinition(t, `
metadata: {id: isolated, name: Isolated, version: 1.0.0}
steps:
  - id: group
    step_type: parallel
    branches:
      steps:
        - id: lhs
          skill: left
          inputs: {peek: "{{steps.rhs.outputs}}"}
        - {id: rhs, skill: right}
`)

	_, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Nil(t, leftSaw, "a sibling's output is not visible inside the group")
}

func TestRun_ParallelEmptyGroup(t *testing.T) {
	def := loadDefinition(t, `
metadata: {id: empty-group, name: Empty, version: 1.0.0}
steps:
  - id: group
    step_type: parallel
    branches:
      steps: []
`)

	result, err := newEngine(t, "http://unused").RunDefinition(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Empty(t, result.StepOutputs)
}

func TestRun_ConditionalTrueBranch(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"t": echo("took true"),
		"f": echo("took false"),
	})

	def := loadDefinition(t, `
metadata: {id: cond, name: Conditional, version: 1.0.0}
steps:
  - id: cond
    step_type: conditional
    condition: "{{workflow.input.flag}}"
    branches:
      if_true: [{id: T, skill: t}]
      if_false: [{id: F, skill: f}]
`)

	eng := newEngine(t, agentURL)

	result, err := eng.RunDefinition(context.Background(), def, map[string]any{"flag": true})
	require.NoError(t, err)
	assert.Contains(t, result.StepOutputs, "T")
	assert.NotContains(t, result.StepOutputs, "F")

	result, err = eng.RunDefinition(context.Background(), def, map[string]any{"flag": false})
	require.NoError(t, err)
	assert.Contains(t, result.StepOutputs, "F")
	assert.NotContains(t, result.StepOutputs, "T")
}

func TestRun_SwitchCases(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"a": echo("case a"),
		"b": echo("case b"),
		"d": echo("default"),
	})

	def := loadDefinition(t, `
metadata: {id: sw, name: Switch, version: 1.0.0}
steps:
  - id: pick
    step_type: switch
    condition: "{{workflow.input.kind}}"
    branches:
      a: [{id: A, skill: a}]
      b: [{id: B, skill: b}]
      default: [{id: D, skill: d}]
`)

	eng := newEngine(t, agentURL)

	result, err := eng.RunDefinition(context.Background(), def, map[string]any{"kind": "a"})
	require.NoError(t, err)
	assert.Contains(t, result.StepOutputs, "A", "exact case wins over default")
	assert.NotContains(t, result.StepOutputs, "D")

	result, err = eng.RunDefinition(context.Background(), def, map[string]any{"kind": "xyz"})
	require.NoError(t, err)
	assert.Contains(t, result.StepOutputs, "D")
	assert.NotContains(t, result.StepOutputs, "A")
	assert.NotContains(t, result.StepOutputs, "B")
}

func TestRun_SwitchNoMatchNoDefault(t *testing.T) {
	def := loadDefinition(t, `
metadata: {id: sw-nop, name: Switch Noop, version: 1.0.0}
steps:
  - id: pick
    step_type: switch
    condition: "{{workflow.input.kind}}"
    branches:
      a: [{id: A, skill: a}]
`)

	result, err := newEngine(t, "http://unused").RunDefinition(context.Background(), def, map[string]any{"kind": "zzz"})
	require.NoError(t, err, "unmatched switch is a no-op, run continues")
	assert.Empty(t, result.StepOutputs)
}

func TestRun_AgentErrorPropagates(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"explode": func(ctx context.Context, params map[string]any) (any, error) {
			return nil, &a2a.AgentError{Code: a2a.InternalError, Message: "boom"}
		},
	})

	def := loadDefinition(t, `
metadata: {id: failing, name: Failing, version: 1.0.0}
steps:
  - id: only
    skill: explode
`)

	result, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.Error(t, err)

	var agentErr *a2a.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, a2a.InternalError, agentErr.Code)
	assert.Contains(t, agentErr.Message, "boom")

	require.NotNil(t, result, "partial context stays observable")
	assert.Empty(t, result.StepOutputs)
}

func TestRun_SequentialHaltsOnFailure(t *testing.T) {
	called := map[string]bool{}
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"ok": func(ctx context.Context, params map[string]any) (any, error) {
			called["ok"] = true
			return "fine", nil
		},
		"bad": func(ctx context.Context, params map[string]any) (any, error) {
			return nil, fmt.Errorf("cannot")
		},
		"after": func(ctx context.Context, params map[string]any) (any, error) {
			called["after"] = true
			return "unreachable", nil
		},
	})

	def := loadDefinition(t, `
metadata: {id: halting, name: Halting, version: 1.0.0}
steps:
  - {id: first, skill: ok}
  - {id: second, skill: bad}
  - {id: third, skill: after}
`)

	result, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.Error(t, err)
	assert.True(t, called["ok"])
	assert.False(t, called["after"], "steps after the failure must not run")
	assert.Contains(t, result.StepOutputs, "first", "outputs before the failure are retained")
	assert.NotContains(t, result.StepOutputs, "third")
}

func TestRun_ParallelChildFailureKeepsCompletedSiblings(t *testing.T) {
	siblingDone := make(chan struct{})
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"fast": func(ctx context.Context, params map[string]any) (any, error) {
			defer close(siblingDone)
			return "finished", nil
		},
		"doomed": func(ctx context.Context, params map[string]any) (any, error) {
			<-siblingDone
			return nil, &a2a.AgentError{Code: a2a.InternalError, Message: "doomed"}
		},
	})

	def := loadDefinition(t, `
metadata: {id: partial, name: Partial, version: 1.0.0}
steps:
  - id: group
    step_type: parallel
    branches:
      steps:
        - {id: winner, skill: fast}
        - {id: loser, skill: doomed}
`)

	result, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.Error(t, err)
	assert.Contains(t, result.StepOutputs, "winner", "completed sibling outputs survive the group failure")
	assert.NotContains(t, result.StepOutputs, "loser")
}

func TestRun_StepTimeout(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"slow": func(ctx context.Context, params map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	def := loadDefinition(t, `
metadata: {id: slowpoke, name: Slowpoke, version: 1.0.0}
steps:
  - id: stuck
    skill: slow
    timeout: 1
`)

	start := time.Now()
	_, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.Error(t, err)

	var timeoutErr *engine.StepTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "stuck", timeoutErr.StepID)
	assert.Equal(t, time.Second, timeoutErr.Timeout)
	assert.Less(t, time.Since(start), 5*time.Second, "the in-flight call is cancelled at the deadline")
}

func TestRun_NestedComposites(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"x": echo("X"),
		"y": echo("Y"),
	})

	// A parallel group whose child is itself a conditional: recursion is
	// uniformly legal.
	def := loadDefinition(t, `
metadata: {id: nested, name: Nested, version: 1.0.0}
steps:
  - id: outer
    step_type: parallel
    branches:
      steps:
        - {id: plain, skill: x}
        - id: inner
          step_type: conditional
          condition: "{{workflow.input.go}}"
          branches:
            if_true: [{id: deep, skill: y}]
`)

	result, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, map[string]any{"go": true})
	require.NoError(t, err)
	assert.Contains(t, result.StepOutputs, "plain")
	assert.Contains(t, result.StepOutputs, "deep")
}

func TestRun_MissingTemplatePathForwardsNil(t *testing.T) {
	var saw map[string]any
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"probe": func(ctx context.Context, params map[string]any) (any, error) {
			saw = params
			return "ok", nil
		},
	})

	def := loadDefinition(t, `
metadata: {id: nils, name: Nils, version: 1.0.0}
steps:
  - id: probe
    skill: probe
    inputs: {ghost: "{{workflow.input.not.there}}"}
`)

	_, err := newEngine(t, agentURL).RunDefinition(context.Background(), def, nil)
	require.NoError(t, err)
	require.Contains(t, saw, "ghost")
	assert.Nil(t, saw["ghost"])
}

// TestRun_EndToEndThroughRegistry drives the full path: workflow and agent
// card pulled from the registry, skills discovered by capability, agents
// invoked over JSON-RPC.
func TestRun_EndToEndThroughRegistry(t *testing.T) {
	agentURL := startStubAgent(t, map[string]a2a.HandlerFunc{
		"greet": func(ctx context.Context, params map[string]any) (any, error) {
			return map[string]any{"greeting": "hello " + cast.ToString(params["name"])}, nil
		},
	})

	registry := ocitest.New()
	t.Cleanup(registry.Close)
	client := oci.NewClient(registry.URL())
	ctx := context.Background()

	card, err := json.Marshal(a2a.AgentCard{
		Name: "greeter", URL: agentURL, Version: "1.0.0",
		Skills: []a2a.AgentSkill{{ID: "greet"}},
	})
	require.NoError(t, err)
	_, err = client.PushArtifact(ctx, "agents/greeter", "v1", oci.File{
		Name: "card.json", MediaType: oci.MediaTypeAgentCard, Data: card,
	}, oci.MediaTypeAgentCard)
	require.NoError(t, err)

	_, err = client.PushArtifact(ctx, "workflows/hello", "v1", oci.File{
		Name:      "hello.yaml",
		MediaType: oci.MediaTypeWorkflow,
		Data: []byte(`
metadata: {id: hello, name: Hello, version: 1.0.0}
steps:
  - id: greet-step
    skill: greet
    inputs: {name: "{{workflow.input.name}}"}
`),
	}, oci.MediaTypeWorkflow)
	require.NoError(t, err)

	eng := engine.New(discovery.New(client))

	result, err := eng.Run(ctx, "hello", map[string]any{"name": "world"}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.WorkflowID)
	assert.Equal(t, map[string]any{"greeting": "hello world"}, result.FinalOutput)

	_, err = eng.Run(ctx, "no-such-workflow", nil, "")
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}
