package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Lookup for names that are not registered.
var ErrNotFound = errors.New("tool not found")

// Parameter is one entry of a tool's parameter contract.
type Parameter struct {
	Name        string
	Description string
	Required    bool
}

// Tool is a named capability the model can ask for. Invoke must be safe to
// repeat with the same parameters.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Invoke(ctx context.Context, parameters map[string]string) (string, error)
}

// ToolError wraps a failed invocation.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type funcTool struct {
	name        string
	description string
	parameters  []Parameter
	fn          func(ctx context.Context, parameters map[string]string) (string, error)
}

// NewTool builds a Tool from a function.
func NewTool(name, description string, parameters []Parameter, fn func(ctx context.Context, parameters map[string]string) (string, error)) Tool {
	return &funcTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

func (t *funcTool) Name() string            { return t.name }
func (t *funcTool) Description() string     { return t.description }
func (t *funcTool) Parameters() []Parameter { return t.parameters }

func (t *funcTool) Invoke(ctx context.Context, parameters map[string]string) (string, error) {
	return t.fn(ctx, parameters)
}
