package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
)

const approvalColumns = `id, tenant_id, requester_id, action, agent_type, resource_type, estimated_cost,
	policy_id, status, reviewer_id, reviewer_note, created_at, resolved_at`

func scanApproval(row scannable) (approval.Request, error) {
	var r approval.Request
	err := row.Scan(&r.ID, &r.TenantID, &r.RequesterID, &r.Action, &r.AgentType, &r.ResourceType,
		&r.EstimatedCost, &r.PolicyID, &r.Status, &r.ReviewerID, &r.ReviewerNote, &r.CreatedAt, &r.ResolvedAt)
	return r, err
}

func (s *Store) CreateApproval(ctx context.Context, r *approval.Request) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO approval_requests (`+approvalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.TenantID, r.RequesterID, r.Action, r.AgentType, r.ResourceType, r.EstimatedCost,
		r.PolicyID, r.Status, r.ReviewerID, r.ReviewerNote, r.CreatedAt, r.ResolvedAt)
	if err != nil {
		return conflictWrap(err, "create approval %s", r.ID)
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, tenantID, id string) (*approval.Request, error) {
	r, err := scanApproval(s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get approval %s", id)
	}
	return &r, nil
}

func (s *Store) ListApprovals(ctx context.Context, tenantID string, status approval.Status) ([]approval.Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE tenant_id = $1 AND ($2::text = '' OR status = $2::text)
		 ORDER BY created_at ASC`,
		tenantID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []approval.Request
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ResolveApproval(ctx context.Context, tenantID, id string, status approval.Status, res approval.Resolution, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE approval_requests SET status = $3, reviewer_id = $4, reviewer_note = $5, resolved_at = $6
		 WHERE id = $1 AND tenant_id = $2 AND status = 'pending'`,
		id, tenantID, status, res.ReviewerID, res.Note, at)
	if err != nil {
		return false, fmt.Errorf("resolve approval %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM approval_requests WHERE id = $1 AND tenant_id = $2)`, id, tenantID)
	if err != nil {
		return false, fmt.Errorf("resolve approval %s: %w", id, err)
	}
	if !ok {
		return false, fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	return false, nil
}
