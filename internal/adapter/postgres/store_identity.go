package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
)

const identityColumns = `id, tenant_id, agent_type, display_name, deployments, cycles, actions_executed,
	errors, repairs, contract_violations, success_rate, reputation_score, contract, retired_at,
	created_at, updated_at`

func scanIdentity(row scannable) (identity.Identity, error) {
	var i identity.Identity
	var contract []byte
	if err := row.Scan(&i.ID, &i.TenantID, &i.AgentType, &i.DisplayName, &i.Deployments, &i.Cycles,
		&i.ActionsExecuted, &i.Errors, &i.Repairs, &i.ContractViolations, &i.SuccessRate,
		&i.ReputationScore, &contract, &i.RetiredAt, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return i, err
	}
	if err := json.Unmarshal(contract, &i.Contract); err != nil {
		return i, fmt.Errorf("decode contract: %w", err)
	}
	return i, nil
}

func (s *Store) CreateIdentity(ctx context.Context, i *identity.Identity) error {
	contract, err := json.Marshal(i.Contract)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_identities (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		i.ID, i.TenantID, i.AgentType, i.DisplayName, i.Deployments, i.Cycles, i.ActionsExecuted,
		i.Errors, i.Repairs, i.ContractViolations, i.SuccessRate, i.ReputationScore, contract,
		i.RetiredAt, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create identity %s", i.ID)
	}
	return nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	i, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM agent_identities WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get identity %s", id)
	}
	return &i, nil
}

func (s *Store) ListIdentities(ctx context.Context, tenantID string) ([]identity.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM agent_identities WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, fn func(*identity.Identity) error) (*identity.Identity, error) {
	var updated identity.Identity
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := scanIdentity(tx.QueryRow(ctx,
			`SELECT `+identityColumns+` FROM agent_identities WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundWrap(err, "get identity %s", id)
		}
		if err := fn(&cur); err != nil {
			return err
		}
		contract, err := json.Marshal(cur.Contract)
		if err != nil {
			return fmt.Errorf("encode contract: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE agent_identities SET display_name = $2, deployments = $3, cycles = $4,
			     actions_executed = $5, errors = $6, repairs = $7, contract_violations = $8,
			     success_rate = $9, reputation_score = $10, contract = $11, retired_at = $12, updated_at = $13
			 WHERE id = $1`,
			cur.ID, cur.DisplayName, cur.Deployments, cur.Cycles, cur.ActionsExecuted, cur.Errors,
			cur.Repairs, cur.ContractViolations, cur.SuccessRate, cur.ReputationScore, contract,
			cur.RetiredAt, cur.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update identity %s: %w", id, err)
		}
		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
