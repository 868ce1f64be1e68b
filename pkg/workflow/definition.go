// Package workflow defines the declarative workflow model: the YAML document
// format, its validation rules, the per-run execution context, and the
// template expressions that wire step inputs to earlier outputs.
package workflow

import (
	"fmt"
	"time"
)

// Step types. Sequential is the leaf type; the other three compose child
// step lists carried in Branches.
const (
	StepTypeSequential  = "sequential"
	StepTypeParallel    = "parallel"
	StepTypeConditional = "conditional"
	StepTypeSwitch      = "switch"
)

// Branch keys with fixed meaning.
const (
	BranchSteps   = "steps"
	BranchIfTrue  = "if_true"
	BranchIfFalse = "if_false"
	BranchDefault = "default"
)

// DefaultStepTimeout bounds a leaf step that declares no timeout.
const DefaultStepTimeout = 300

// Definition is a parsed, validated workflow document. It is immutable for
// the lifetime of a run.
type Definition struct {
	Metadata Metadata `yaml:"metadata"`
	Steps    []*Step  `yaml:"steps"`
}

// Metadata identifies a workflow within the registry.
type Metadata struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Step is one node in the workflow DAG. Leaf steps invoke a skill; composite
// steps (parallel, conditional, switch) carry child step lists in Branches,
// keyed per step type.
type Step struct {
	ID        string             `yaml:"id"`
	Skill     string             `yaml:"skill,omitempty"`
	StepType  string             `yaml:"step_type,omitempty"`
	Inputs    map[string]any     `yaml:"inputs,omitempty"`
	Outputs   string             `yaml:"outputs,omitempty"`
	Timeout   *int               `yaml:"timeout,omitempty"`
	Condition string             `yaml:"condition,omitempty"`
	Branches  map[string][]*Step `yaml:"branches,omitempty"`
}

// IsComposite reports whether the step composes child steps rather than
// invoking a skill itself.
func (s *Step) IsComposite() bool {
	switch s.StepType {
	case StepTypeParallel, StepTypeConditional, StepTypeSwitch:
		return true
	}
	return false
}

// TimeoutDuration returns the step's effective timeout.
func (s *Step) TimeoutDuration() time.Duration {
	if s.Timeout == nil {
		return DefaultStepTimeout * time.Second
	}
	return time.Duration(*s.Timeout) * time.Second
}

// ParallelSteps returns the children of a parallel step.
func (s *Step) ParallelSteps() []*Step {
	return s.Branches[BranchSteps]
}

// ConditionalBranch returns the child list selected by the condition's
// truthiness. An absent branch is a valid empty list.
func (s *Step) ConditionalBranch(truthy bool) []*Step {
	if truthy {
		return s.Branches[BranchIfTrue]
	}
	return s.Branches[BranchIfFalse]
}

// SwitchBranch returns the child list for the stringified condition value,
// preferring an exact case match over "default". ok is false when neither
// exists, which makes the switch a no-op.
func (s *Step) SwitchBranch(value string) ([]*Step, bool) {
	if steps, exists := s.Branches[value]; exists {
		return steps, true
	}
	if steps, exists := s.Branches[BranchDefault]; exists {
		return steps, true
	}
	return nil, false
}

// SetDefaults fills in omitted step types and timeouts across the whole
// step tree.
func (d *Definition) SetDefaults() {
	setStepDefaults(d.Steps)
}

func setStepDefaults(steps []*Step) {
	for _, s := range steps {
		if s == nil {
			continue
		}
		if s.StepType == "" {
			s.StepType = StepTypeSequential
		}
		if s.Timeout == nil {
			timeout := DefaultStepTimeout
			s.Timeout = &timeout
		}
		for _, children := range s.Branches {
			setStepDefaults(children)
		}
	}
}

// Validate checks the definition against the document schema and fails fast
// with a *ValidationError on the first structural problem. Step ids must be
// unique across the entire tree: branch children store outputs into the same
// namespace as top-level steps.
func (d *Definition) Validate() error {
	if d.Metadata.ID == "" {
		return validationErrorf("metadata.id", "is required")
	}
	if d.Metadata.Name == "" {
		return validationErrorf("metadata.name", "is required")
	}
	if d.Metadata.Version == "" {
		return validationErrorf("metadata.version", "is required")
	}
	if len(d.Steps) == 0 {
		return validationErrorf("steps", "workflow must have at least one step")
	}

	seen := make(map[string]bool)
	return validateSteps(d.Steps, "steps", seen)
}

func validateSteps(steps []*Step, path string, seen map[string]bool) error {
	for i, s := range steps {
		field := fmt.Sprintf("%s[%d]", path, i)
		if s == nil {
			return validationErrorf(field, "step is empty")
		}
		if err := validateStep(s, field, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Step, field string, seen map[string]bool) error {
	if s.ID == "" {
		return validationErrorf(field+".id", "is required")
	}
	if seen[s.ID] {
		return validationErrorf(field+".id", "duplicate step id %q", s.ID)
	}
	seen[s.ID] = true

	if s.Timeout != nil && *s.Timeout <= 0 {
		return validationErrorf(field+".timeout", "must be a positive number of seconds")
	}

	switch s.StepType {
	case StepTypeSequential:
		if s.Skill == "" {
			return validationErrorf(field+".skill", "is required for sequential steps")
		}

	case StepTypeParallel:
		children, exists := s.Branches[BranchSteps]
		if !exists {
			return validationErrorf(field+".branches", "parallel step requires a %q branch", BranchSteps)
		}
		for key := range s.Branches {
			if key != BranchSteps {
				return validationErrorf(field+".branches", "unexpected branch %q on parallel step", key)
			}
		}
		return validateSteps(children, field+".branches.steps", seen)

	case StepTypeConditional:
		if s.Condition == "" {
			return validationErrorf(field+".condition", "is required for conditional steps")
		}
		if len(s.Branches) == 0 {
			return validationErrorf(field+".branches", "conditional step requires %q and/or %q", BranchIfTrue, BranchIfFalse)
		}
		for key, children := range s.Branches {
			if key != BranchIfTrue && key != BranchIfFalse {
				return validationErrorf(field+".branches", "unexpected branch %q on conditional step", key)
			}
			if err := validateSteps(children, fmt.Sprintf("%s.branches.%s", field, key), seen); err != nil {
				return err
			}
		}

	case StepTypeSwitch:
		if s.Condition == "" {
			return validationErrorf(field+".condition", "is required for switch steps")
		}
		if len(s.Branches) == 0 {
			return validationErrorf(field+".branches", "switch step requires at least one case")
		}
		for key, children := range s.Branches {
			if err := validateSteps(children, fmt.Sprintf("%s.branches.%s", field, key), seen); err != nil {
				return err
			}
		}

	default:
		return validationErrorf(field+".step_type", "unknown step type %q", s.StepType)
	}

	return nil
}
