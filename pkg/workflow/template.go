package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// templatePattern matches a template atom: a whole string of the form
// {{ path }} where path is dot-separated non-empty segments. Interpolation
// inside larger strings is not supported; such strings are literals.
var templatePattern = regexp.MustCompile(`^\{\{\s*([A-Za-z0-9_-]+(?:\.[A-Za-z0-9_-]+)*)\s*\}\}$`)

// Path roots recognized by the resolver.
const (
	rootWorkflow = "workflow"
	rootSteps    = "steps"
	rootInput    = "input"
)

// IsTemplate reports whether s is a template atom.
func IsTemplate(s string) bool {
	return templatePattern.MatchString(s)
}

// Resolve evaluates a template expression against the context. Non-template
// strings are returned as-is. Paths that miss — unknown roots, absent keys,
// out-of-range indices, type mismatches — resolve to nil rather than error;
// the engine forwards the nil as an ordinary agent param. Resolution is pure
// with respect to a fixed context.
func (c *ExecutionContext) Resolve(expr string) any {
	match := templatePattern.FindStringSubmatch(expr)
	if match == nil {
		return expr
	}
	segments := strings.Split(match[1], ".")

	switch segments[0] {
	case rootWorkflow:
		// workflow.input.<rest>
		if len(segments) < 2 || segments[1] != rootInput {
			return nil
		}
		return navigate(c.WorkflowInput(), segments[2:])

	case rootSteps:
		// steps.<id>.outputs.<rest>
		if len(segments) < 3 || segments[2] != outputsKey {
			return nil
		}
		value, ok := c.StepOutput(segments[1])
		if !ok {
			return nil
		}
		return navigate(value, segments[3:])
	}
	return nil
}

// ResolveInputs resolves a step's input mapping against the context:
// strings are resolved as template-atom-or-literal, mappings key by key,
// sequences element by element; scalars pass through unchanged.
func (c *ExecutionContext) ResolveInputs(inputs map[string]any) map[string]any {
	resolved := make(map[string]any, len(inputs))
	for key, value := range inputs {
		resolved[key] = c.resolveValue(value)
	}
	return resolved
}

func (c *ExecutionContext) resolveValue(v any) any {
	switch val := v.(type) {
	case string:
		return c.Resolve(val)
	case map[string]any:
		return c.ResolveInputs(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = c.resolveValue(item)
		}
		return result
	default:
		return v
	}
}

// navigate walks node by path segments: string segments key mappings,
// all-digit segments index sequences. Any mismatch yields nil.
func navigate(node any, segments []string) any {
	for _, seg := range segments {
		switch current := node.(type) {
		case map[string]any:
			value, ok := current[seg]
			if !ok {
				return nil
			}
			node = value
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(current) {
				return nil
			}
			node = current[idx]
		default:
			return nil
		}
	}
	return node
}

// Truthy interprets a resolved condition value for conditional steps: nil,
// false, zero numbers, empty strings, and empty collections are false;
// everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		if f, err := cast.ToFloat64E(v); err == nil {
			return f != 0
		}
		return true
	}
}

// Stringify converts a resolved switch condition value to its case key.
// Booleans stringify lowercase ("true"/"false"), integers in decimal.
func Stringify(v any) string {
	return cast.ToString(v)
}
