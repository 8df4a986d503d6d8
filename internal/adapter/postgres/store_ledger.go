package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
)

// --- Agent budgets ---

func (s *Store) GetAgentBudget(ctx context.Context, agentID string) (*budget.AgentBudget, error) {
	var b budget.AgentBudget
	err := s.pool.QueryRow(ctx,
		`SELECT agent_id, tenant_id, max_tokens, max_cost_usd, used_tokens, used_cost_usd,
		        warning_threshold_pct, pause_threshold_pct, updated_at
		 FROM agent_budgets WHERE agent_id = $1`, agentID,
	).Scan(&b.AgentID, &b.TenantID, &b.MaxTokens, &b.MaxCostUSD, &b.UsedTokens, &b.UsedCostUSD,
		&b.WarningThresholdPct, &b.PauseThresholdPct, &b.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get agent budget %s", agentID)
	}
	return &b, nil
}

func (s *Store) UpsertAgentBudget(ctx context.Context, b *budget.AgentBudget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_budgets (agent_id, tenant_id, max_tokens, max_cost_usd, used_tokens, used_cost_usd,
		                            warning_threshold_pct, pause_threshold_pct, updated_at)
		 VALUES ($1, $2, $3, $4, 0, 0, $5, $6, COALESCE($7, NOW()))
		 ON CONFLICT (agent_id) DO UPDATE SET
		     tenant_id = EXCLUDED.tenant_id,
		     max_tokens = EXCLUDED.max_tokens,
		     max_cost_usd = EXCLUDED.max_cost_usd,
		     used_tokens = 0,
		     used_cost_usd = 0,
		     warning_threshold_pct = EXCLUDED.warning_threshold_pct,
		     pause_threshold_pct = EXCLUDED.pause_threshold_pct,
		     updated_at = EXCLUDED.updated_at`,
		b.AgentID, b.TenantID, b.MaxTokens, b.MaxCostUSD, b.WarningThresholdPct, b.PauseThresholdPct,
		nullTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert agent budget %s: %w", b.AgentID, err)
	}
	return nil
}

func (s *Store) IncrementAgentUsage(ctx context.Context, agentID string, tokens int64, costUSD float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_budgets
		 SET used_tokens = used_tokens + $2, used_cost_usd = used_cost_usd + $3, updated_at = NOW()
		 WHERE agent_id = $1`,
		agentID, tokens, costUSD)
	return execExpectOne(tag, err, "increment agent usage %s", agentID)
}

// --- Cost records ---

func (s *Store) AppendCostRecord(ctx context.Context, r *cost.Record) error {
	var in, out *int64
	if r.Usage != nil {
		in, out = &r.Usage.InputTokens, &r.Usage.OutputTokens
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_records (id, tenant_id, agent_id, operation_type, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.TenantID, r.AgentID, r.OperationType, in, out, r.CostUSD, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("append cost record: %w", err)
	}
	return nil
}

func (s *Store) ListCostRecords(ctx context.Context, agentID string, limit int) ([]cost.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, agent_id, operation_type, input_tokens, output_tokens, cost_usd, created_at
		 FROM cost_records WHERE agent_id = $1
		 ORDER BY created_at DESC, seq DESC LIMIT NULLIF($2::int, 0)`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list cost records: %w", err)
	}
	defer rows.Close()

	var result []cost.Record
	for rows.Next() {
		var r cost.Record
		var in, out *int64
		if err := rows.Scan(&r.ID, &r.TenantID, &r.AgentID, &r.OperationType, &in, &out, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		if in != nil || out != nil {
			r.Usage = &cost.TokenUsage{}
			if in != nil {
				r.Usage.InputTokens = *in
			}
			if out != nil {
				r.Usage.OutputTokens = *out
			}
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- Tenant budgets ---

func (s *Store) GetTenantBudget(ctx context.Context, tenantID string) (*budget.TenantBudget, error) {
	var b budget.TenantBudget
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, monthly_limit_usd, warning_threshold_pct, pause_threshold_pct, updated_at
		 FROM tenant_budgets WHERE tenant_id = $1`, tenantID,
	).Scan(&b.TenantID, &b.MonthlyLimitUSD, &b.WarningThresholdPct, &b.PauseThresholdPct, &b.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant budget %s", tenantID)
	}
	return &b, nil
}

func (s *Store) UpsertTenantBudget(ctx context.Context, b *budget.TenantBudget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_budgets (tenant_id, monthly_limit_usd, warning_threshold_pct, pause_threshold_pct, updated_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		 ON CONFLICT (tenant_id) DO UPDATE SET
		     monthly_limit_usd = EXCLUDED.monthly_limit_usd,
		     warning_threshold_pct = EXCLUDED.warning_threshold_pct,
		     pause_threshold_pct = EXCLUDED.pause_threshold_pct,
		     updated_at = EXCLUDED.updated_at`,
		b.TenantID, b.MonthlyLimitUSD, b.WarningThresholdPct, b.PauseThresholdPct, nullTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert tenant budget %s: %w", b.TenantID, err)
	}
	return nil
}

func (s *Store) SumTenantCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_records
		 WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum tenant cost: %w", err)
	}
	return total, nil
}

// --- Daily aggregates ---

func (s *Store) AddDailyCost(ctx context.Context, d cost.DailyCost) error {
	day, err := time.Parse(time.DateOnly, d.Date)
	if err != nil {
		return fmt.Errorf("add daily cost: parse date %q: %w", d.Date, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO daily_costs (tenant_id, day, cost_usd, tokens_in, tokens_out, run_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, day) DO UPDATE SET
		     cost_usd = daily_costs.cost_usd + EXCLUDED.cost_usd,
		     tokens_in = daily_costs.tokens_in + EXCLUDED.tokens_in,
		     tokens_out = daily_costs.tokens_out + EXCLUDED.tokens_out,
		     run_count = daily_costs.run_count + EXCLUDED.run_count`,
		d.TenantID, day, d.CostUSD, d.TokensIn, d.TokensOut, d.RunCount)
	if err != nil {
		return fmt.Errorf("add daily cost: %w", err)
	}
	return nil
}

// ListDailyCosts returns aggregates for from <= day <= to, both YYYY-MM-DD.
func (s *Store) ListDailyCosts(ctx context.Context, tenantID, from, to string) ([]cost.DailyCost, error) {
	fromDay, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return nil, fmt.Errorf("list daily costs: parse from %q: %w", from, err)
	}
	toDay, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return nil, fmt.Errorf("list daily costs: parse to %q: %w", to, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, to_char(day, 'YYYY-MM-DD'), cost_usd, tokens_in, tokens_out, run_count
		 FROM daily_costs WHERE tenant_id = $1 AND day >= $2 AND day <= $3
		 ORDER BY day ASC`,
		tenantID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list daily costs: %w", err)
	}
	defer rows.Close()

	var out []cost.DailyCost
	for rows.Next() {
		var d cost.DailyCost
		if err := rows.Scan(&d.TenantID, &d.Date, &d.CostUSD, &d.TokensIn, &d.TokensOut, &d.RunCount); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
