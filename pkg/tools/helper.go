// Package tools provides utility functions for declaring cloudbridge tool
// metadata and validating declared input schemas.
package tools

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/FreePeak/cloudbridge/pkg/types"
)

// ToolOption is a function that configures a tool declaration.
type ToolOption func(*types.Tool)

// NewTool creates a new tool declaration with the given name and options.
// The input schema starts as an empty object schema.
func NewTool(name string, options ...ToolOption) *types.Tool {
	tool := &types.Tool{
		Name: name,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}

	for _, option := range options {
		option(tool)
	}

	return tool
}

// WithDescription sets the description of a tool.
func WithDescription(description string) ToolOption {
	return func(t *types.Tool) {
		t.Description = description
	}
}

// WithSchema replaces the tool's input schema wholesale.
func WithSchema(schema map[string]interface{}) ToolOption {
	return func(t *types.Tool) {
		t.InputSchema = schema
	}
}

// ParameterOption is a function that configures a declared parameter.
type ParameterOption func(prop map[string]interface{}, required *[]string, name string)

// Description sets the description of a parameter.
func Description(description string) ParameterOption {
	return func(prop map[string]interface{}, _ *[]string, _ string) {
		prop["description"] = description
	}
}

// Required marks a parameter as required.
func Required() ParameterOption {
	return func(_ map[string]interface{}, required *[]string, name string) {
		*required = append(*required, name)
	}
}

// WithString adds a string parameter to a tool's input schema.
func WithString(name string, options ...ParameterOption) ToolOption {
	return withTyped(name, "string", options...)
}

// WithNumber adds a number parameter to a tool's input schema.
func WithNumber(name string, options ...ParameterOption) ToolOption {
	return withTyped(name, "number", options...)
}

// WithBoolean adds a boolean parameter to a tool's input schema.
func WithBoolean(name string, options ...ParameterOption) ToolOption {
	return withTyped(name, "boolean", options...)
}

// WithObject adds an object parameter to a tool's input schema.
func WithObject(name string, options ...ParameterOption) ToolOption {
	return withTyped(name, "object", options...)
}

func withTyped(name, typ string, options ...ParameterOption) ToolOption {
	return func(t *types.Tool) {
		props, ok := t.InputSchema["properties"].(map[string]interface{})
		if !ok {
			props = map[string]interface{}{}
			t.InputSchema["properties"] = props
		}

		prop := map[string]interface{}{"type": typ}

		var required []string
		if existing, ok := t.InputSchema["required"].([]string); ok {
			required = existing
		}

		for _, option := range options {
			option(prop, &required, name)
		}

		props[name] = prop
		if len(required) > 0 {
			t.InputSchema["required"] = required
		}
	}
}

// ValidateSchema compiles the tool's declared input schema. A tool whose
// schema does not compile is treated as having no usable metadata: it is
// excluded from listings rather than surfaced as a protocol error.
func ValidateSchema(t *types.Tool) error {
	if t.InputSchema == nil {
		return fmt.Errorf("tool %q has no input schema", t.Name)
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("cloudbridge:///%s/input-schema.json", t.Name)
	if err := compiler.AddResource(url, normalize(t.InputSchema)); err != nil {
		return fmt.Errorf("tool %q: add schema resource: %w", t.Name, err)
	}
	if _, err := compiler.Compile(url); err != nil {
		return fmt.Errorf("tool %q: compile schema: %w", t.Name, err)
	}
	return nil
}

// normalize rewrites typed slices into the interface shapes the schema
// compiler expects from unmarshalled JSON.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, nested := range val {
			out[k] = normalize(nested)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, nested := range val {
			out[i] = normalize(nested)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return v
	}
}
