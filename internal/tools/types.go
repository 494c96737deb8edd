// Package tools provides the fixed tool surface the agent conversation can
// invoke against a graph snapshot. Each tool takes JSON-shaped arguments and
// returns a JSON-serializable result; every fault is returned as a structured
// error result so the model can self-correct, never thrown out of the loop.
package tools

import "context"

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type  string         `json:"type"`
	Items *PropertyItems `json:"items,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The returned string is a
// JSON document ready to attach to the conversation as a tool result.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one named operation the model may call.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does, for the model.
	Description string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// InputSchema renders the schema as a JSON-schema object for the chat
// backend's tool declaration.
func (t *Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		props[name] = propertyMap(p)
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func propertyMap(p Property) map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if p.Items != nil {
		m["items"] = itemsMap(p.Items)
	}
	return m
}

func itemsMap(it *PropertyItems) map[string]any {
	m := map[string]any{"type": it.Type}
	if it.Items != nil {
		m["items"] = itemsMap(it.Items)
	}
	return m
}

// Definition is the provider-agnostic declaration of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
