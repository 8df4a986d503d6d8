package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "signof.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SIGNOF_PORT")
	setString(&cfg.Server.CORSOrigin, "SIGNOF_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimitRPS, "SIGNOF_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "SIGNOF_RATE_LIMIT_BURST")
	setDuration(&cfg.Server.IdempotencyTTL, "SIGNOF_IDEMPOTENCY_TTL")
	setString(&cfg.Server.MCPAPIKey, "SIGNOF_MCP_API_KEY")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SIGNOF_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SIGNOF_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SIGNOF_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SIGNOF_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SIGNOF_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setDuration(&cfg.LiteLLM.Timeout, "SIGNOF_LITELLM_TIMEOUT")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Logging.Level, "SIGNOF_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SIGNOF_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SIGNOF_LOG_ASYNC")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "SIGNOF_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRatio, "SIGNOF_OTEL_SAMPLE_RATIO")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "SIGNOF_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2, "SIGNOF_CACHE_L2")
	setString(&cfg.Cache.L2Bucket, "SIGNOF_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "SIGNOF_CACHE_L2_TTL")

	// Breaker
	setInt(&cfg.Breaker.FailureThreshold, "SIGNOF_BREAKER_FAILURE_THRESHOLD")
	setDuration(&cfg.Breaker.ResetTimeout, "SIGNOF_BREAKER_RESET_TIMEOUT")
	setInt(&cfg.Breaker.HalfOpenMaxTests, "SIGNOF_BREAKER_HALF_OPEN_MAX_TESTS")

	// Governor
	setList(&cfg.Governor.SensitiveActions, "SIGNOF_SENSITIVE_ACTIONS")
	setString(&cfg.Governor.PolicyDir, "SIGNOF_POLICY_DIR")
	setDuration(&cfg.Governor.PolicyCacheTTL, "SIGNOF_POLICY_CACHE_TTL")

	// Budget
	setFloat64(&cfg.Budget.WarningThresholdPct, "SIGNOF_BUDGET_WARNING_PCT")
	setFloat64(&cfg.Budget.PauseThresholdPct, "SIGNOF_BUDGET_PAUSE_PCT")
	setDuration(&cfg.Budget.LimitCacheTTL, "SIGNOF_BUDGET_CACHE_TTL")

	// Kernel
	setInt(&cfg.Kernel.HistoryLimit, "SIGNOF_KERNEL_HISTORY_LIMIT")
	setDuration(&cfg.Kernel.ModelTimeout, "SIGNOF_KERNEL_MODEL_TIMEOUT")
	setFloat64(&cfg.Kernel.DefaultRatePer1K, "SIGNOF_KERNEL_DEFAULT_RATE")

	// Selector
	setList(&cfg.Selector.Providers, "SIGNOF_PROVIDERS")
	setDuration(&cfg.Selector.PollInterval, "SIGNOF_SELECTOR_POLL_INTERVAL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}
	if cfg.Breaker.HalfOpenMaxTests < 1 {
		return errors.New("breaker.half_open_max_tests must be >= 1")
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		return errors.New("breaker.reset_timeout must be > 0")
	}
	if cfg.Budget.PauseThresholdPct <= 0 || cfg.Budget.PauseThresholdPct > 100 {
		return errors.New("budget.pause_threshold_pct must be in (0, 100]")
	}
	if cfg.Budget.WarningThresholdPct < 0 || cfg.Budget.WarningThresholdPct > cfg.Budget.PauseThresholdPct {
		return errors.New("budget.warning_threshold_pct must be in [0, pause_threshold_pct]")
	}
	if cfg.Kernel.HistoryLimit < 1 {
		return errors.New("kernel.history_limit must be >= 1")
	}
	switch cfg.Cache.L2 {
	case "", "nats", "redis":
	default:
		return fmt.Errorf("cache.l2 %q must be one of nats, redis or empty", cfg.Cache.L2)
	}
	if cfg.Cache.L2 == "nats" && cfg.NATS.URL == "" {
		return errors.New("cache.l2 nats requires nats.url")
	}
	if cfg.Cache.L2 == "redis" && cfg.Redis.URL == "" {
		return errors.New("cache.l2 redis requires redis.url")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList parses a comma-separated env value, trimming whitespace.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
