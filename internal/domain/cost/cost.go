// Package cost defines the append-only cost ledger and model pricing.
package cost

import "time"

// TokenUsage is the token accounting reported by a model call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 { return u.InputTokens + u.OutputTokens }

// Add returns the sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Record is an immutable ledger entry. Never mutated or deleted.
type Record struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	AgentID       string      `json:"agent_id"`
	OperationType string      `json:"operation_type"`
	Usage         *TokenUsage `json:"usage,omitempty"`
	CostUSD       float64     `json:"cost_usd"`
	CreatedAt     time.Time   `json:"created_at"`
}

// DailyCost holds the aggregated cost for one tenant-day.
type DailyCost struct {
	TenantID  string  `json:"tenant_id"`
	Date      string  `json:"date"` // YYYY-MM-DD, UTC
	CostUSD   float64 `json:"cost_usd"`
	TokensIn  int64   `json:"tokens_in"`
	TokensOut int64   `json:"tokens_out"`
	RunCount  int     `json:"run_count"`
}

// DayKey formats t as the UTC date used by DailyCost.
func DayKey(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// MonthStart returns the first instant of t's UTC month.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Pricing maps model names to USD per 1K tokens with a fallback rate.
type Pricing struct {
	PerThousand map[string]float64
	DefaultRate float64
}

// Rate returns the per-1K-token rate for model.
func (p Pricing) Rate(model string) float64 {
	if r, ok := p.PerThousand[model]; ok {
		return r
	}
	return p.DefaultRate
}

// Cost prices usage for model.
func (p Pricing) Cost(model string, u TokenUsage) float64 {
	return float64(u.Total()) / 1000 * p.Rate(model)
}
