// Package litellm provides an HTTP client for the LiteLLM Proxy: the admin
// API used for model discovery and the OpenAI-compatible chat endpoint.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// Model represents a configured model in LiteLLM.
type Model struct {
	ModelName string         `json:"model_name"`
	Provider  string         `json:"litellm_provider,omitempty"`
	ModelID   string         `json:"model_id,omitempty"`
	ModelInfo map[string]any `json:"model_info,omitempty"`
	Params    map[string]any `json:"litellm_params,omitempty"`
}

// HealthReport is the detailed /health response.
type HealthReport struct {
	HealthyEndpoints   []EndpointHealth `json:"healthy_endpoints"`
	UnhealthyEndpoints []EndpointHealth `json:"unhealthy_endpoints"`
	HealthyCount       int              `json:"healthy_count"`
	UnhealthyCount     int              `json:"unhealthy_count"`
}

// EndpointHealth is the health of a single model endpoint.
type EndpointHealth struct {
	Model   string `json:"model"`
	APIBase string `json:"api_base,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Discovery statuses.
const (
	StatusReachable   = "reachable"
	StatusUnreachable = "unreachable"
)

// DiscoveredModel is a configured model joined with its health.
type DiscoveredModel struct {
	ModelName   string `json:"model_name"`
	Provider    string `json:"provider"`
	MaxTokens   int    `json:"max_tokens,omitempty"`
	Status      string `json:"status"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Client talks to the LiteLLM Proxy.
type Client struct {
	baseURL    string
	masterKey  string
	httpClient *http.Client
	chatClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new LiteLLM client. Chat calls are bounded by the
// caller's context; admin calls by a fixed 10s timeout.
func NewClient(baseURL, masterKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		masterKey:  masterKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		chatClient: &http.Client{},
	}
}

// SetBreaker attaches a circuit breaker to admin API calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// ListModels returns all configured models from LiteLLM.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/model/info", nil)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var result struct {
		Data []Model `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}
	return result.Data, nil
}

// Health checks if LiteLLM is healthy.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err == nil, err
}

// HealthDetailed returns per-endpoint health.
func (c *Client) HealthDetailed(ctx context.Context) (*HealthReport, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	var report HealthReport
	if err := json.Unmarshal(resp, &report); err != nil {
		return nil, fmt.Errorf("unmarshal health: %w", err)
	}
	if report.HealthyCount == 0 {
		report.HealthyCount = len(report.HealthyEndpoints)
	}
	if report.UnhealthyCount == 0 {
		report.UnhealthyCount = len(report.UnhealthyEndpoints)
	}
	return &report, nil
}

// DiscoverModels lists configured models and marks each reachable or not.
// When /health itself fails every model is reported reachable.
func (c *Client) DiscoverModels(ctx context.Context) ([]DiscoveredModel, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	unhealthy := map[string]string{}
	report, hErr := c.HealthDetailed(ctx)
	if hErr != nil {
		slog.Warn("litellm health unavailable, assuming reachable", "error", hErr)
	} else {
		for _, e := range report.UnhealthyEndpoints {
			detail := e.Error
			if detail == "" {
				detail = "unhealthy"
			}
			unhealthy[e.Model] = detail
		}
	}

	out := make([]DiscoveredModel, 0, len(models))
	for i := range models {
		m := &models[i]
		dm := DiscoveredModel{
			ModelName: m.ModelName,
			Provider:  providerOf(m),
			Status:    StatusReachable,
		}
		if v, ok := m.ModelInfo["max_tokens"].(float64); ok {
			dm.MaxTokens = int(v)
		}
		if detail, ok := unhealthy[m.ModelName]; ok {
			dm.Status, dm.ErrorDetail = StatusUnreachable, detail
		}
		out = append(out, dm)
	}
	return out, nil
}

// providerOf derives the provider from the routed model ("openai/gpt-4o")
// or the model name itself.
func providerOf(m *Model) string {
	if m.Provider != "" {
		return m.Provider
	}
	if routed, ok := m.Params["model"].(string); ok {
		if p, _, found := strings.Cut(routed, "/"); found {
			return p
		}
	}
	if p, _, found := strings.Cut(m.ModelName, "/"); found {
		return p
	}
	return ""
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.masterKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.masterKey)
	}
}
