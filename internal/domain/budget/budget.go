// Package budget defines agent and tenant spend limits and the shared
// decision law that evaluates them.
package budget

import "time"

// Deny reasons.
const (
	ReasonTokensExhausted = "Token budget exhausted"
	ReasonCostExhausted   = "Cost budget exhausted"
	ReasonPauseThreshold  = "Pause threshold reached"
	ReasonNoBudget        = "No budget configured"
	ReasonWithinBudget    = "Within budget"
)

// AgentBudget caps one agent's tokens and spend. A zero max leaves that
// dimension unlimited. Used counters only grow until SetBudget resets them.
type AgentBudget struct {
	AgentID             string    `json:"agent_id"`
	TenantID            string    `json:"tenant_id"`
	MaxTokens           int64     `json:"max_tokens"`
	MaxCostUSD          float64   `json:"max_cost_usd"`
	UsedTokens          int64     `json:"used_tokens"`
	UsedCostUSD         float64   `json:"used_cost_usd"`
	WarningThresholdPct float64   `json:"warning_threshold_pct"`
	PauseThresholdPct   float64   `json:"pause_threshold_pct"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Limits returns the budget caps and thresholds.
func (b *AgentBudget) Limits() Limits {
	return Limits{
		MaxTokens:           b.MaxTokens,
		MaxCostUSD:          b.MaxCostUSD,
		WarningThresholdPct: b.WarningThresholdPct,
		PauseThresholdPct:   b.PauseThresholdPct,
	}
}

// TenantBudget caps a tenant's monthly spend. Usage is derived from the
// cost ledger for the current UTC month.
type TenantBudget struct {
	TenantID            string    `json:"tenant_id"`
	MonthlyLimitUSD     float64   `json:"monthly_limit_usd"`
	WarningThresholdPct float64   `json:"warning_threshold_pct"`
	PauseThresholdPct   float64   `json:"pause_threshold_pct"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Limits returns the budget caps and thresholds. Tokens are unlimited.
func (b *TenantBudget) Limits() Limits {
	return Limits{
		MaxCostUSD:          b.MonthlyLimitUSD,
		WarningThresholdPct: b.WarningThresholdPct,
		PauseThresholdPct:   b.PauseThresholdPct,
	}
}

// Limits are the caps evaluated by Evaluate.
type Limits struct {
	MaxTokens           int64
	MaxCostUSD          float64
	WarningThresholdPct float64
	PauseThresholdPct   float64
}

// Usage is consumed or requested spend.
type Usage struct {
	Tokens  int64
	CostUSD float64
}

// Decision is the outcome of a budget check.
type Decision struct {
	Allowed          bool     `json:"allowed"`
	Reason           string   `json:"reason"`
	RemainingTokens  *int64   `json:"remaining_tokens,omitempty"`
	RemainingCostUSD *float64 `json:"remaining_cost_usd,omitempty"`
	TokenPct         float64  `json:"token_pct"`
	CostPct          float64  `json:"cost_pct"`
	WarningReached   bool     `json:"warning_reached"`
}

// Unlimited is the decision for an absent budget.
func Unlimited() Decision { return Decision{Allowed: true, Reason: ReasonNoBudget} }

// Evaluate applies the decision law: projected = used + requested; deny if
// projected exceeds a cap, or if the larger projected percentage reaches
// the pause threshold. The warning threshold never denies.
func Evaluate(l Limits, used, requested Usage) Decision {
	projTokens := used.Tokens + requested.Tokens
	projCost := used.CostUSD + requested.CostUSD

	d := Decision{Allowed: true, Reason: ReasonWithinBudget}
	if l.MaxTokens > 0 {
		rem := max(l.MaxTokens-used.Tokens, 0)
		d.RemainingTokens = &rem
		d.TokenPct = float64(projTokens) / float64(l.MaxTokens) * 100
	}
	if l.MaxCostUSD > 0 {
		rem := max(l.MaxCostUSD-used.CostUSD, 0)
		d.RemainingCostUSD = &rem
		d.CostPct = projCost / l.MaxCostUSD * 100
	}
	pct := max(d.TokenPct, d.CostPct)
	d.WarningReached = l.WarningThresholdPct > 0 && pct >= l.WarningThresholdPct

	switch {
	case l.MaxTokens > 0 && projTokens > l.MaxTokens:
		d.Allowed, d.Reason = false, ReasonTokensExhausted
	case l.MaxCostUSD > 0 && projCost > l.MaxCostUSD:
		d.Allowed, d.Reason = false, ReasonCostExhausted
	case l.PauseThresholdPct > 0 && pct >= l.PauseThresholdPct:
		d.Allowed, d.Reason = false, ReasonPauseThreshold
	}
	return d
}

// Status summarizes current consumption without a new request.
type Status struct {
	AgentID        string  `json:"agent_id"`
	Configured     bool    `json:"configured"`
	TokenPct       float64 `json:"token_pct"`
	CostPct        float64 `json:"cost_pct"`
	WarningReached bool    `json:"warning_reached"`
	Paused         bool    `json:"paused"`
}

// SetRequest configures an agent budget and resets its counters.
type SetRequest struct {
	AgentID             string  `json:"agent_id"`
	TenantID            string  `json:"tenant_id"`
	MaxTokens           int64   `json:"max_tokens"`
	MaxCostUSD          float64 `json:"max_cost_usd"`
	WarningThresholdPct float64 `json:"warning_threshold_pct"`
	PauseThresholdPct   float64 `json:"pause_threshold_pct"`
}
