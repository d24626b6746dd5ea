package workflow

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateConfig checks a custom configuration against the JSON schema carried
// by the node definition's ConfigMetadata. Definitions without metadata accept
// any configuration. Intended for the CRUD layer; the executor never enforces
// schemas at run time.
func ValidateConfig(def NodeDefinition, cfg map[string]any) error {
	if len(def.ConfigMetadata) == 0 {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def.ConfigMetadata))
	if err != nil {
		return fmt.Errorf("parse config metadata for definition %q: %w", def.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := fmt.Sprintf("weft://node-definitions/%d.json", def.ID)
	if err := compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("add config metadata resource: %w", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile config metadata for definition %q: %w", def.Name, err)
	}
	// The validator wants plain JSON values; map[string]any qualifies as-is.
	value := make(map[string]any, len(cfg))
	for k, v := range cfg {
		value[k] = v
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("config for definition %q: %w", def.Name, err)
	}
	return nil
}
