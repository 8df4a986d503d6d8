package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/langchain"
	"github.com/multivitaminds/signof-sub014/internal/adapter/litellm"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/port/connector"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// litellmAdminBreaker guards model discovery. Provider breakers are keyed
// separately so a flaky admin API never hides healthy providers.
const litellmAdminBreaker = "litellm:admin"

// newLLMRegistry routes every provider through the LiteLLM proxy, except
// openai when a direct API key is configured.
func newLLMRegistry(cfg *config.Config, breakers *resilience.Registry) (*llm.Registry, *litellm.Client) {
	proxy := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	proxy.SetBreaker(breakers.Get(litellmAdminBreaker))

	reg := llm.NewRegistry(proxy)
	for _, p := range cfg.Selector.Providers {
		reg.Register(p, proxy)
	}

	if cfg.OpenAI.APIKey != "" {
		direct, err := langchain.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
		if err != nil {
			slog.Warn("direct openai client unavailable, using proxy", "error", err)
		} else {
			reg.Register("openai", direct)
			slog.Info("openai routed directly")
		}
	}
	return reg, proxy
}

// registerBuiltinTools adds the in-process tools every deployment offers.
func registerBuiltinTools(tools *connector.Registry) {
	tools.RegisterLocal(connector.Tool{
		Name:        "current_time",
		Description: "Current UTC time in RFC 3339 format",
		Action:      "tool.current_time",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(context.Context, json.RawMessage) (string, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	})
}
