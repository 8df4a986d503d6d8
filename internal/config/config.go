// Package config provides hierarchical configuration loading for the governor.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the governance service.
type Config struct {
	Server   Server   `yaml:"server"`
	Postgres Postgres `yaml:"postgres"`
	NATS     NATS     `yaml:"nats"`
	Redis    Redis    `yaml:"redis"`
	Cache    Cache    `yaml:"cache"`
	LiteLLM  LiteLLM  `yaml:"litellm"`
	OpenAI   OpenAI   `yaml:"openai"`
	Logging  Logging  `yaml:"logging"`
	OTEL     OTEL     `yaml:"otel"`
	Breaker  Breaker  `yaml:"breaker"`
	Governor Governor `yaml:"governor"`
	Budget   Budget   `yaml:"budget"`
	Kernel   Kernel   `yaml:"kernel"`
	Selector Selector `yaml:"selector"`
	MCP      MCP      `yaml:"mcp"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"` // per tenant; 0 disables
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	MCPAPIKey      string        `yaml:"mcp_api_key"`
}

// Postgres holds PostgreSQL connection configuration.
// An empty DSN selects the in-memory store.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables events.
type NATS struct {
	URL string `yaml:"url"`
}

// Redis holds the optional Redis L2 cache connection.
type Redis struct {
	URL string `yaml:"url"`
}

// Cache holds the policy/budget-limit read-through cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2          string        `yaml:"l2"` // "" | "nats" | "redis"
	L2Bucket    string        `yaml:"l2_bucket"`
	L2TTL       time.Duration `yaml:"l2_ttl"`
}

// LiteLLM holds LiteLLM proxy configuration.
type LiteLLM struct {
	URL       string        `yaml:"url"`
	MasterKey string        `yaml:"master_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// OpenAI holds direct provider credentials used through langchaingo.
type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// OTEL holds OpenTelemetry exporter configuration. An empty endpoint disables export.
type OTEL struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Breaker holds circuit breaker defaults applied to newly created breakers.
type Breaker struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	HalfOpenMaxTests int           `yaml:"half_open_max_tests"`
}

// Governor holds policy gate configuration.
type Governor struct {
	SensitiveActions []string      `yaml:"sensitive_actions"`
	PolicyDir        string        `yaml:"policy_dir"`
	PolicyCacheTTL   time.Duration `yaml:"policy_cache_ttl"`
}

// Budget holds default thresholds applied when a budget omits them.
type Budget struct {
	WarningThresholdPct float64       `yaml:"warning_threshold_pct"`
	PauseThresholdPct   float64       `yaml:"pause_threshold_pct"`
	LimitCacheTTL       time.Duration `yaml:"limit_cache_ttl"`
}

// Kernel holds orchestrator configuration.
type Kernel struct {
	HistoryLimit     int                `yaml:"history_limit"`
	ModelTimeout     time.Duration      `yaml:"model_timeout"`
	DefaultRatePer1K float64            `yaml:"default_rate_per_1k"`
	Pricing          map[string]float64 `yaml:"pricing"` // model -> USD per 1K tokens
}

// Selector holds model tier selection configuration.
type Selector struct {
	Tiers        map[string][]ModelRef `yaml:"tiers"`     // tier -> ordered candidates
	PlanCaps     map[string]string     `yaml:"plan_caps"` // plan -> max tier
	Providers    []string              `yaml:"providers"` // statically available providers
	PollInterval time.Duration         `yaml:"poll_interval"`
}

// ModelRef names one model candidate within a tier.
type ModelRef struct {
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
}

// MCP holds MCP connector server definitions.
type MCP struct {
	ServerEnabled bool              `yaml:"server_enabled"`
	Connectors    []MCPConnectorDef `yaml:"connectors"`
}

// MCPConnectorDef describes one MCP server reachable as a connector.
type MCPConnectorDef struct {
	ID        string            `yaml:"id"`
	Transport string            `yaml:"transport"` // "stdio" | "sse" | "streamable_http"
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "http://localhost:3000",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			IdempotencyTTL: 24 * time.Hour,
		},
		Postgres: Postgres{
			MaxConns:        15,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Cache: Cache{
			L1MaxSizeMB: 32,
			L2Bucket:    "SIGNOF_CACHE",
			L2TTL:       2 * time.Minute,
		},
		LiteLLM: LiteLLM{
			URL:     "http://localhost:4000",
			Timeout: 60 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "signof-governor",
		},
		OTEL: OTEL{
			Insecure:    true,
			SampleRatio: 1.0,
		},
		Breaker: Breaker{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
			HalfOpenMaxTests: 1,
		},
		Governor: Governor{
			SensitiveActions: []string{"data.delete", "data.export", "user.remove", "payment.process"},
			PolicyCacheTTL:   2 * time.Minute,
		},
		Budget: Budget{
			WarningThresholdPct: 80,
			PauseThresholdPct:   95,
			LimitCacheTTL:       time.Minute,
		},
		Kernel: Kernel{
			HistoryLimit:     50,
			ModelTimeout:     2 * time.Minute,
			DefaultRatePer1K: 0.002,
			Pricing: map[string]float64{
				"gpt-4o-mini":       0.0006,
				"gpt-4o":            0.01,
				"claude-3-5-haiku":  0.004,
				"claude-3-5-sonnet": 0.015,
			},
		},
		Selector: Selector{
			Tiers: map[string][]ModelRef{
				"fast":     {{Model: "gpt-4o-mini", Provider: "openai"}, {Model: "claude-3-5-haiku", Provider: "anthropic"}},
				"balanced": {{Model: "gpt-4o", Provider: "openai"}, {Model: "claude-3-5-sonnet", Provider: "anthropic"}},
				"powerful": {{Model: "claude-3-5-sonnet", Provider: "anthropic"}, {Model: "gpt-4o", Provider: "openai"}},
			},
			PlanCaps: map[string]string{
				"free":       "fast",
				"starter":    "balanced",
				"pro":        "powerful",
				"enterprise": "powerful",
			},
			Providers:    []string{"openai"},
			PollInterval: time.Minute,
		},
	}
}
