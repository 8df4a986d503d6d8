// Package llm defines the language-model call port.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef advertises a callable tool to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Request is one chat call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDef
	// OnToken receives streamed content deltas. Best effort: the returned
	// Response is authoritative.
	OnToken func(delta string)
}

// Response is the model output.
type Response struct {
	Content   string
	Usage     cost.TokenUsage
	ToolCalls []ToolCall
}

// Client performs chat calls against one provider.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// Registry maps provider names to clients. A fallback client, when set,
// serves providers without a dedicated client.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client
	fallback Client
}

// NewRegistry creates an empty registry with an optional fallback.
func NewRegistry(fallback Client) *Registry {
	return &Registry{clients: make(map[string]Client), fallback: fallback}
}

// Register binds provider to c, replacing any previous client.
func (r *Registry) Register(provider string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = c
}

// Client returns the client for provider.
func (r *Registry) Client(provider string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[provider]; ok {
		return c, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("llm: no client for provider %q", provider)
}

// Providers returns the names of providers with a dedicated client.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	return out
}
