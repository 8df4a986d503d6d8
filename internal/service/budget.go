package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/port/cache"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
)

// UsageRecord is one usage report submitted to the ledger.
type UsageRecord struct {
	TenantID      string           `json:"tenant_id"`
	AgentID       string           `json:"agent_id"`
	OperationType string           `json:"operation_type"`
	Usage         *cost.TokenUsage `json:"usage,omitempty"`
	CostUSD       float64          `json:"cost_usd"`
}

// BudgetService is the budget ledger: agent and tenant limits evaluated
// against the append-only cost ledger.
//
// Agent budgets are read fresh because their used counters live on the
// same row. Tenant limits are cached; tenant spend is always summed fresh.
type BudgetService struct {
	store    database.LedgerStore
	tenants  *readThrough[*budget.TenantBudget]
	defaults config.Budget
	now      func() time.Time
}

// NewBudgetService creates a BudgetService. c may be nil.
func NewBudgetService(store database.LedgerStore, c cache.Cache, defaults config.Budget) *BudgetService {
	return &BudgetService{
		store:    store,
		tenants:  newReadThrough[*budget.TenantBudget](c, "budget:tenant", defaults.LimitCacheTTL),
		defaults: defaults,
		now:      time.Now,
	}
}

// CheckBudget evaluates a request for more tokens/spend by agentID.
// An agent without a budget is unlimited.
func (s *BudgetService) CheckBudget(ctx context.Context, agentID string, requested budget.Usage) (budget.Decision, error) {
	b, err := s.store.GetAgentBudget(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return budget.Unlimited(), nil
	}
	if err != nil {
		return budget.Decision{}, fmt.Errorf("get agent budget %s: %w", agentID, err)
	}
	used := budget.Usage{Tokens: b.UsedTokens, CostUSD: b.UsedCostUSD}
	return budget.Evaluate(b.Limits(), used, requested), nil
}

// Status reports current consumption for agentID.
func (s *BudgetService) Status(ctx context.Context, agentID string) (budget.Status, error) {
	b, err := s.store.GetAgentBudget(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return budget.Status{AgentID: agentID}, nil
	}
	if err != nil {
		return budget.Status{}, fmt.Errorf("get agent budget %s: %w", agentID, err)
	}
	d := budget.Evaluate(b.Limits(), budget.Usage{Tokens: b.UsedTokens, CostUSD: b.UsedCostUSD}, budget.Usage{})
	return budget.Status{
		AgentID:        agentID,
		Configured:     true,
		TokenPct:       d.TokenPct,
		CostPct:        d.CostPct,
		WarningReached: d.WarningReached,
		Paused:         !d.Allowed,
	}, nil
}

// RecordUsage appends a cost record and, when the agent has a budget,
// increments its counters. Tokens are only counted when usage is reported.
func (s *BudgetService) RecordUsage(ctx context.Context, u UsageRecord) (*cost.Record, error) {
	if u.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	}
	if u.CostUSD < 0 {
		return nil, fmt.Errorf("cost_usd must be >= 0: %w", domain.ErrValidation)
	}
	rec := &cost.Record{
		ID:            uuid.NewString(),
		TenantID:      u.TenantID,
		AgentID:       u.AgentID,
		OperationType: u.OperationType,
		Usage:         u.Usage,
		CostUSD:       u.CostUSD,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.AppendCostRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("append cost record: %w", err)
	}

	var tokens int64
	if u.Usage != nil {
		tokens = u.Usage.Total()
	}
	err := s.store.IncrementAgentUsage(ctx, u.AgentID, tokens, u.CostUSD)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return rec, fmt.Errorf("increment agent usage %s: %w", u.AgentID, err)
	}
	return rec, nil
}

// SetBudget configures an agent budget and resets its counters.
func (s *BudgetService) SetBudget(ctx context.Context, req budget.SetRequest) (*budget.AgentBudget, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	}
	if req.MaxTokens < 0 || req.MaxCostUSD < 0 {
		return nil, fmt.Errorf("budget caps must be >= 0: %w", domain.ErrValidation)
	}
	warn, pause, err := s.thresholds(req.WarningThresholdPct, req.PauseThresholdPct)
	if err != nil {
		return nil, err
	}
	b := &budget.AgentBudget{
		AgentID:             req.AgentID,
		TenantID:            req.TenantID,
		MaxTokens:           req.MaxTokens,
		MaxCostUSD:          req.MaxCostUSD,
		WarningThresholdPct: warn,
		PauseThresholdPct:   pause,
		UpdatedAt:           s.now().UTC(),
	}
	if err := s.store.UpsertAgentBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("upsert agent budget: %w", err)
	}
	slog.Info("agent budget set", "agent_id", b.AgentID, "max_tokens", b.MaxTokens, "max_cost_usd", b.MaxCostUSD)
	return b, nil
}

// GetBudget returns the agent budget.
func (s *BudgetService) GetBudget(ctx context.Context, agentID string) (*budget.AgentBudget, error) {
	return s.store.GetAgentBudget(ctx, agentID)
}

// CostRecords returns the most recent ledger entries for agentID.
func (s *BudgetService) CostRecords(ctx context.Context, agentID string, limit int) ([]cost.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListCostRecords(ctx, agentID, limit)
}

func (s *BudgetService) thresholds(warn, pause float64) (float64, float64, error) {
	if warn == 0 {
		warn = s.defaults.WarningThresholdPct
	}
	if pause == 0 {
		pause = s.defaults.PauseThresholdPct
	}
	if pause <= 0 || pause > 100 {
		return 0, 0, fmt.Errorf("pause_threshold_pct must be in (0, 100]: %w", domain.ErrValidation)
	}
	if warn < 0 || warn > pause {
		return 0, 0, fmt.Errorf("warning_threshold_pct must be in [0, pause]: %w", domain.ErrValidation)
	}
	return warn, pause, nil
}

// --- Tenant budgets ---

func (s *BudgetService) tenantBudget(ctx context.Context, tenantID string) (*budget.TenantBudget, error) {
	return s.tenants.get(ctx, tenantID, func(ctx context.Context) (*budget.TenantBudget, error) {
		b, err := s.store.GetTenantBudget(ctx, tenantID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return b, err
	})
}

// GetTenantBudget returns the tenant's monthly cap.
func (s *BudgetService) GetTenantBudget(ctx context.Context, tenantID string) (*budget.TenantBudget, error) {
	b, err := s.tenantBudget(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant budget %s: %w", tenantID, err)
	}
	if b == nil {
		return nil, fmt.Errorf("tenant budget %s: %w", tenantID, domain.ErrNotFound)
	}
	return b, nil
}

// CheckTenantBudget evaluates additional spend against the tenant's
// monthly cap. Spend is the sum of this UTC month's cost records.
func (s *BudgetService) CheckTenantBudget(ctx context.Context, tenantID string, requestedCostUSD float64) (budget.Decision, error) {
	b, err := s.tenantBudget(ctx, tenantID)
	if err != nil {
		return budget.Decision{}, fmt.Errorf("get tenant budget %s: %w", tenantID, err)
	}
	if b == nil {
		return budget.Unlimited(), nil
	}
	now := s.now()
	spent, err := s.store.SumTenantCost(ctx, tenantID, cost.MonthStart(now), now.Add(time.Nanosecond))
	if err != nil {
		return budget.Decision{}, fmt.Errorf("sum tenant cost %s: %w", tenantID, err)
	}
	return budget.Evaluate(b.Limits(), budget.Usage{CostUSD: spent}, budget.Usage{CostUSD: requestedCostUSD}), nil
}

// SetTenantBudget configures the tenant's monthly cap.
func (s *BudgetService) SetTenantBudget(ctx context.Context, b budget.TenantBudget) (*budget.TenantBudget, error) {
	if b.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required: %w", domain.ErrValidation)
	}
	if b.MonthlyLimitUSD < 0 {
		return nil, fmt.Errorf("monthly_limit_usd must be >= 0: %w", domain.ErrValidation)
	}
	warn, pause, err := s.thresholds(b.WarningThresholdPct, b.PauseThresholdPct)
	if err != nil {
		return nil, err
	}
	b.WarningThresholdPct, b.PauseThresholdPct = warn, pause
	b.UpdatedAt = s.now().UTC()
	if err := s.store.UpsertTenantBudget(ctx, &b); err != nil {
		return nil, fmt.Errorf("upsert tenant budget: %w", err)
	}
	s.tenants.invalidate(ctx, b.TenantID)
	return &b, nil
}

// --- Daily aggregates ---

// AddDaily folds one run into the tenant-day aggregate.
func (s *BudgetService) AddDaily(ctx context.Context, tenantID string, usage cost.TokenUsage, costUSD float64) error {
	return s.store.AddDailyCost(ctx, cost.DailyCost{
		TenantID:  tenantID,
		Date:      cost.DayKey(s.now()),
		CostUSD:   costUSD,
		TokensIn:  usage.InputTokens,
		TokensOut: usage.OutputTokens,
		RunCount:  1,
	})
}

// DailyCosts returns the tenant's aggregates for the last days days.
func (s *BudgetService) DailyCosts(ctx context.Context, tenantID string, days int) ([]cost.DailyCost, error) {
	if days <= 0 || days > 366 {
		days = 30
	}
	now := s.now()
	from := cost.DayKey(now.AddDate(0, 0, -(days - 1)))
	return s.store.ListDailyCosts(ctx, tenantID, from, cost.DayKey(now))
}
