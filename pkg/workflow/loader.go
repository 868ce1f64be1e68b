package workflow

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load parses a workflow document from YAML bytes, applies defaults, and
// validates it. The yaml.v3 parser is a safe loader: unknown tags never
// execute anything.
func Load(data []byte) (*Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	if raw == nil {
		return nil, &ValidationError{Message: "document is empty"}
	}

	def := &Definition{}
	if err := decodeDefinition(raw, def); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to decode document: %v", err)}
	}

	def.SetDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadFile reads and loads a workflow document from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Load(data)
}

func decodeDefinition(input map[string]any, output *Definition) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}

// Serialize renders a definition back to YAML. Load(Serialize(d)) yields a
// definition equal to d up to default normalization.
func Serialize(d *Definition) ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workflow: %w", err)
	}
	return data, nil
}
