package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"chorus-server/experiment-api/internal/domain/llm"
)

// Tool is one callable function exposed to the agent runnable.
type Tool interface {
	Name() string
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, call Call, args json.RawMessage) (string, error)
}

// Call carries the session context a tool executes under.
type Call struct {
	TeamID        uint
	ExperimentID  uint
	SessionID     uint
	ParticipantID uint
	Timezone      string
}

// Registry holds the tools enabled for an experiment.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			continue
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Definitions returns the OpenAI-shaped declarations, in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Filter returns a registry restricted to the named tools. Unknown names
// are skipped.
func (r *Registry) Filter(names []string) *Registry {
	filtered := &Registry{tools: make(map[string]Tool)}
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		filtered.tools[name] = t
		filtered.order = append(filtered.order, name)
	}
	return filtered
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Execute dispatches a tool call by name.
func (r *Registry) Execute(ctx context.Context, name string, call Call, args json.RawMessage) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return t.Execute(ctx, call, args)
}
