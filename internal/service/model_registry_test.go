package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/litellm"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

// newTestLiteLLMServer creates a mock LiteLLM server that serves /model/info and /health.
func newTestLiteLLMServer(healthy, unhealthy []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/model/info":
			data := make([]map[string]any, 0)
			for _, name := range append(healthy, unhealthy...) {
				data = append(data, map[string]any{
					"model_name": name,
					"model_id":   "id-" + name,
					"model_info": map[string]any{
						"max_tokens":            128000.0,
						"output_cost_per_token": 1.5e-5,
					},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})

		case "/health":
			he := make([]map[string]string, 0)
			for _, name := range healthy {
				he = append(he, map[string]string{"model": name})
			}
			ue := make([]map[string]string, 0)
			for _, name := range unhealthy {
				ue = append(ue, map[string]string{"model": name, "error": "unreachable"})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"healthy_endpoints":   he,
				"unhealthy_endpoints": ue,
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestModelRegistryRefresh(t *testing.T) {
	srv := newTestLiteLLMServer([]string{"gpt-4o", "anthropic/claude-3-5-sonnet"}, []string{"anthropic/claude-3-5-haiku"})
	defer srv.Close()

	registry := service.NewModelRegistry(litellm.NewClient(srv.URL, "test-key"), 0) // 0 = no polling

	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if n := len(registry.AvailableModels()); n != 3 {
		t.Fatalf("expected 3 models, got %d", n)
	}
	if !registry.IsHealthy("gpt-4o") {
		t.Error("expected gpt-4o to be healthy")
	}
	if registry.IsHealthy("anthropic/claude-3-5-haiku") {
		t.Error("expected claude-3-5-haiku to be unhealthy")
	}
	if registry.IsHealthy("nonexistent") {
		t.Error("expected nonexistent model to be unhealthy")
	}

	ctx := context.Background()
	if !registry.IsAvailable(ctx, "openai", "gpt-4o") {
		t.Error("expected gpt-4o available by bare name")
	}
	if !registry.IsAvailable(ctx, "anthropic", "claude-3-5-sonnet") {
		t.Error("expected sonnet available by provider-qualified name")
	}
	if registry.IsAvailable(ctx, "anthropic", "claude-3-5-haiku") {
		t.Error("expected haiku unavailable")
	}
	if registry.IsAvailable(ctx, "openai", "gpt-4o-mini") {
		t.Error("unconfigured model must be unavailable after refresh")
	}

	if time.Since(registry.LastRefresh()) > 5*time.Second {
		t.Error("expected LastRefresh to be recent")
	}
}

func TestModelRegistryAvailableBeforeRefresh(t *testing.T) {
	registry := service.NewModelRegistry(litellm.NewClient("http://127.0.0.1:1", "k"), 0)
	if !registry.IsAvailable(context.Background(), "openai", "anything") {
		t.Error("every model should be assumed available before the first refresh")
	}
}

func TestModelRegistryStart(t *testing.T) {
	srv := newTestLiteLLMServer([]string{"gpt-4o"}, nil)
	defer srv.Close()

	registry := service.NewModelRegistry(litellm.NewClient(srv.URL, "test-key"), 0) // 0 = no periodic polling

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.Start(ctx)

	// After Start, first refresh should have run synchronously.
	if len(registry.AvailableModels()) != 1 {
		t.Fatalf("expected 1 model after Start, got %d", len(registry.AvailableModels()))
	}
}

func TestModelRegistryFailedRefreshKeepsView(t *testing.T) {
	srv := newTestLiteLLMServer([]string{"gpt-4o"}, nil)
	registry := service.NewModelRegistry(litellm.NewClient(srv.URL, "test-key"), 0)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv.Close()

	if err := registry.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh against a closed server to fail")
	}
	if !registry.IsHealthy("gpt-4o") {
		t.Error("failed refresh must keep the previous view")
	}
}

func TestModelRegistryAllUnhealthy(t *testing.T) {
	srv := newTestLiteLLMServer(nil, []string{"gpt-4o", "claude-3-5-sonnet"})
	defer srv.Close()

	registry := service.NewModelRegistry(litellm.NewClient(srv.URL, "test-key"), 0)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if registry.IsAvailable(context.Background(), "openai", "gpt-4o") {
		t.Error("expected gpt-4o unavailable when unhealthy")
	}
	// Models should still be in the cache.
	if len(registry.AvailableModels()) != 2 {
		t.Errorf("expected 2 models in cache, got %d", len(registry.AvailableModels()))
	}
}
