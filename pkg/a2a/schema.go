package a2a

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor generates a JSON schema document from a sample Go value using
// struct tags. The result is the plain map form carried by AgentSkill.
//
// Supported tags:
//   - json:"name"                      parameter name
//   - json:",omitempty"                optional parameter
//   - jsonschema:"required"            explicitly required
//   - jsonschema:"description=..."     parameter description
//   - jsonschema:"enum=a|b"            allowed values
func SchemaFor(sample any) (map[string]any, error) {
	if sample == nil {
		return nil, nil
	}

	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(sample)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	// $schema and $id are noise in an agent card.
	delete(result, "$schema")
	delete(result, "$id")

	return result, nil
}
