package litellm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/multivitaminds/signof-sub014/internal/adapter/litellm"
)

// proxyStub serves /model/info and /health. A nil health body answers 500.
func proxyStub(t *testing.T, models []map[string]any, health map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/model/info":
			_ = json.NewEncoder(w).Encode(map[string]any{"data": models})
		case "/health":
			if health == nil {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"broken"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(health)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthDetailedCounts(t *testing.T) {
	tests := []struct {
		name          string
		health        map[string]any
		wantHealthy   int
		wantUnhealthy int
		wantErr       bool
	}{
		{
			name: "explicit counts",
			health: map[string]any{
				"healthy_endpoints":   []map[string]string{{"model": "gpt-4o"}},
				"unhealthy_endpoints": []map[string]string{{"model": "claude-3-5-haiku", "error": "timeout"}},
				"healthy_count":       1,
				"unhealthy_count":     1,
			},
			wantHealthy:   1,
			wantUnhealthy: 1,
		},
		{
			name: "counts derived from endpoint lists",
			health: map[string]any{
				"healthy_endpoints": []map[string]string{{"model": "gpt-4o"}, {"model": "gpt-4o-mini"}},
			},
			wantHealthy: 2,
		},
		{
			name:    "proxy failure",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := proxyStub(t, nil, tt.health)
			report, err := litellm.NewClient(srv.URL, "test-key").HealthDetailed(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("HealthDetailed: %v", err)
			}
			if report.HealthyCount != tt.wantHealthy || report.UnhealthyCount != tt.wantUnhealthy {
				t.Fatalf("counts = %d/%d, want %d/%d", report.HealthyCount, report.UnhealthyCount, tt.wantHealthy, tt.wantUnhealthy)
			}
		})
	}
}

func TestDiscoverModels(t *testing.T) {
	models := []map[string]any{
		{"model_name": "gpt-4o", "model_info": map[string]any{"max_tokens": 128000}, "litellm_params": map[string]any{"model": "openai/gpt-4o"}},
		{"model_name": "anthropic/claude-3-5-haiku"},
		{"model_name": "sonnet", "litellm_provider": "anthropic"},
	}

	type want struct {
		provider  string
		status    string
		maxTokens int
		detail    bool
	}
	tests := []struct {
		name   string
		health map[string]any
		want   map[string]want
	}{
		{
			name: "unhealthy endpoint marked unreachable",
			health: map[string]any{
				"healthy_endpoints":   []map[string]string{{"model": "gpt-4o"}, {"model": "sonnet"}},
				"unhealthy_endpoints": []map[string]string{{"model": "anthropic/claude-3-5-haiku", "error": "ConnectionError: host unreachable"}},
			},
			want: map[string]want{
				"gpt-4o":                     {provider: "openai", status: litellm.StatusReachable, maxTokens: 128000},
				"anthropic/claude-3-5-haiku": {provider: "anthropic", status: litellm.StatusUnreachable, detail: true},
				"sonnet":                     {provider: "anthropic", status: litellm.StatusReachable},
			},
		},
		{
			name: "failed health check assumes reachable",
			want: map[string]want{
				"gpt-4o":                     {provider: "openai", status: litellm.StatusReachable, maxTokens: 128000},
				"anthropic/claude-3-5-haiku": {provider: "anthropic", status: litellm.StatusReachable},
				"sonnet":                     {provider: "anthropic", status: litellm.StatusReachable},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := proxyStub(t, models, tt.health)
			got, err := litellm.NewClient(srv.URL, "").DiscoverModels(context.Background())
			if err != nil {
				t.Fatalf("DiscoverModels: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d models, got %d", len(tt.want), len(got))
			}
			for _, m := range got {
				w, ok := tt.want[m.ModelName]
				if !ok {
					t.Fatalf("unexpected model %q", m.ModelName)
				}
				if m.Provider != w.provider || m.Status != w.status || m.MaxTokens != w.maxTokens || (m.ErrorDetail != "") != w.detail {
					t.Errorf("%s: got %+v, want %+v", m.ModelName, m, w)
				}
			}
		})
	}
}

func TestDiscoverModelsListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := litellm.NewClient(srv.URL, "wrong").DiscoverModels(context.Background()); err == nil {
		t.Fatal("expected error when the model list is unavailable")
	}
}
