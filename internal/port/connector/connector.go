// Package connector defines external connectors and the tool catalog
// exposed to agents.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/multivitaminds/signof-sub014/internal/port/llm"
)

// Tool describes one callable tool. Tools without a ConnectorID run
// in-process and bypass circuit breakers.
type Tool struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	ConnectorID   string         `json:"connector_id,omitempty"`
	Action        string         `json:"action,omitempty"` // governor action; defaults to "tool.<name>"
	AutonomyLevel int            `json:"autonomy_level,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
}

// GovernedAction returns the action string submitted to the governor.
func (t Tool) GovernedAction() string {
	if t.Action != "" {
		return t.Action
	}
	return "tool." + t.Name
}

// Def converts the tool for a model request.
func (t Tool) Def() llm.ToolDef {
	return llm.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// Connector is an external integration exposing tools.
type Connector interface {
	ID() string
	Tools(ctx context.Context) ([]Tool, error)
	Call(ctx context.Context, tool string, args json.RawMessage) (string, error)
}

// Func is an in-process tool implementation.
type Func func(ctx context.Context, args json.RawMessage) (string, error)

type entry struct {
	tool Tool
	fn   Func
	conn Connector
}

// Registry is the tool catalog. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty catalog.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// RegisterLocal adds an in-process tool.
func (r *Registry) RegisterLocal(t Tool, fn Func) {
	t.ConnectorID = ""
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = entry{tool: t, fn: fn}
}

// RegisterConnector adds every tool c exposes.
func (r *Registry) RegisterConnector(ctx context.Context, c Connector) error {
	tools, err := c.Tools(ctx)
	if err != nil {
		return fmt.Errorf("list tools of connector %s: %w", c.ID(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		t.ConnectorID = c.ID()
		r.tools[t.Name] = entry{tool: t, conn: c}
	}
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Invoke runs the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if e.conn != nil {
		return e.conn.Call(ctx, name, args)
	}
	return e.fn(ctx, args)
}

// Tools returns every registered tool ordered by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	out := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.tool)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Defs returns the model-facing definition of every tool.
func (r *Registry) Defs() []llm.ToolDef {
	tools := r.Tools()
	out := make([]llm.ToolDef, len(tools))
	for i, t := range tools {
		out[i] = t.Def()
	}
	return out
}
