// Package tools defines the capabilities the assistant can call during a
// conversation and the helpers for declaring them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/becomeliminal/nim-assistant/core"
)

// HandlerFunc executes a tool.
type HandlerFunc func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error)

// Builder assembles a core.Tool.
type Builder struct {
	name        string
	description string
	schema      Schema
	writes      bool
}

// New starts a tool definition.
func New(name string) *Builder {
	return &Builder{name: name, schema: ObjectSchema(Schema{})}
}

// Description sets the description shown to the model.
func (b *Builder) Description(d string) *Builder {
	b.description = d
	return b
}

// Schema sets the input schema.
func (b *Builder) Schema(s Schema) *Builder {
	b.schema = s
	return b
}

// Writes marks the tool as mutating state.
func (b *Builder) Writes() *Builder {
	b.writes = true
	return b
}

// Handler completes the definition.
func (b *Builder) Handler(h HandlerFunc) core.Tool {
	return &tool{
		name:        b.name,
		description: b.description,
		schema:      b.schema,
		writes:      b.writes,
		handler:     h,
	}
}

type tool struct {
	name        string
	description string
	schema      Schema
	writes      bool
	handler     HandlerFunc
}

func (t *tool) Name() string                   { return t.name }
func (t *tool) Description() string            { return t.description }
func (t *tool) Schema() map[string]interface{} { return t.schema }
func (t *tool) Writes() bool                   { return t.writes }

func (t *tool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	return t.handler(ctx, params)
}

// decode unmarshals tool input. Empty input decodes to the zero value.
func decode(params *core.ToolParams, v interface{}) error {
	if len(params.Input) == 0 || string(params.Input) == "null" {
		return nil
	}
	if err := json.Unmarshal(params.Input, v); err != nil {
		return &core.ValidationError{Field: "input", Constraint: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// ok wraps data in a successful result.
func ok(data interface{}) (*core.ToolResult, error) {
	return &core.ToolResult{Success: true, Data: data}, nil
}

// fail converts caller mistakes into failed results the model can
// correct. Dependency failures are returned as errors.
func fail(err error) (*core.ToolResult, error) {
	if core.IsValidation(err) || core.IsNotFound(err) {
		return &core.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return nil, err
}
