package engine

import "github.com/maestro-flow/maestro/pkg/workflow"

// Result is what a run hands back to the caller. On failure it still carries
// every output captured before the error, so partial state stays observable.
type Result struct {
	WorkflowID      string                    `json:"workflow_id"`
	WorkflowName    string                    `json:"workflow_name"`
	WorkflowVersion string                    `json:"workflow_version"`
	InitialInput    map[string]any            `json:"initial_input"`
	StepOutputs     map[string]map[string]any `json:"step_outputs"`
	FinalOutput     any                       `json:"final_output"`
}

func buildResult(def *workflow.Definition, input map[string]any, ec *workflow.ExecutionContext) *Result {
	return &Result{
		WorkflowID:      def.Metadata.ID,
		WorkflowName:    def.Metadata.Name,
		WorkflowVersion: def.Metadata.Version,
		InitialInput:    input,
		StepOutputs:     ec.StepOutputs(),
		FinalOutput:     ec.FinalOutput(),
	}
}
