package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pixie-agent/internal/log"
)

var tracer = otel.Tracer("pixie-agent/tools")

// Registry maps tool names to tools. It never touches the conversation;
// callers turn results into turns themselves.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}

	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool %q already registered", name)
	}

	r.tools[name] = tool

	return nil
}

func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return tool, nil
}

// Invoke checks the tool's required parameters and runs it. Failures and
// panics come back as *ToolError.
func (r *Registry) Invoke(ctx context.Context, tool Tool, parameters map[string]string) (result string, err error) {
	name := tool.Name()

	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	defer func() {
		if rec := recover(); rec != nil {
			err = &ToolError{Tool: name, Err: fmt.Errorf("panic: %v", rec)}
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("tool failed", "tool", name, "error", err)
		}
	}()

	for _, p := range tool.Parameters() {
		if p.Required && strings.TrimSpace(parameters[p.Name]) == "" {
			return "", &ToolError{Tool: name, Err: fmt.Errorf("missing required parameter %q", p.Name)}
		}
	}

	log.Info("invoking tool", "tool", name, "parameters", parameters)

	result, err = tool.Invoke(ctx, parameters)
	if err != nil {
		return "", &ToolError{Tool: name, Err: err}
	}

	return result, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Describe renders the catalogue of tools for the model's instructions.
func (r *Registry) Describe() string {
	var b strings.Builder

	for _, name := range r.Names() {
		tool, err := r.Lookup(name)
		if err != nil {
			continue
		}

		fmt.Fprintf(&b, "- %s: %s\n", name, tool.Description())
		for _, p := range tool.Parameters() {
			requirement := "optional"
			if p.Required {
				requirement = "required"
			}
			fmt.Fprintf(&b, "    %s (%s): %s\n", p.Name, requirement, p.Description)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
