package postgres

import (
	"context"
	"fmt"

	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
)

const policyColumns = `id, tenant_id, name, action, effect, requires_approval, agent_types,
	min_cost, max_cost, priority, enabled, created_at, updated_at`

func scanPolicy(row scannable) (policy.Policy, error) {
	var p policy.Policy
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Action, &p.Effect, &p.RequiresApproval, &p.AgentTypes,
		&p.Conditions.MinCost, &p.Conditions.MaxCost, &p.Priority, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if len(p.AgentTypes) == 0 {
		p.AgentTypes = nil
	}
	return p, err
}

func (s *Store) ListPolicies(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE tenant_id = $1 ORDER BY priority DESC, id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPolicy(ctx context.Context, tenantID, id string) (*policy.Policy, error) {
	p, err := scanPolicy(s.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get policy %s", id)
	}
	return &p, nil
}

func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO policies (`+policyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.TenantID, p.Name, p.Action, p.Effect, p.RequiresApproval, pgTextArray(p.AgentTypes),
		p.Conditions.MinCost, p.Conditions.MaxCost, p.Priority, p.Enabled, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create policy %s", p.ID)
	}
	return nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET name = $3, action = $4, effect = $5, requires_approval = $6, agent_types = $7,
		     min_cost = $8, max_cost = $9, priority = $10, enabled = $11, updated_at = $12
		 WHERE id = $1 AND tenant_id = $2`,
		p.ID, p.TenantID, p.Name, p.Action, p.Effect, p.RequiresApproval, pgTextArray(p.AgentTypes),
		p.Conditions.MinCost, p.Conditions.MaxCost, p.Priority, p.Enabled, p.UpdatedAt)
	return execExpectOne(tag, err, "update policy %s", p.ID)
}

func (s *Store) DeletePolicy(ctx context.Context, tenantID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM policies WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return execExpectOne(tag, err, "delete policy %s", id)
}
