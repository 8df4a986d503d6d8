package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
)

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	details, err := jsonb(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, tenant_id, actor, action, resource_type, resource_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, e.Actor, e.Action, e.ResourceType, e.ResourceID, details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries first.
func (s *Store) ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, actor, action, resource_type, resource_id, details, created_at
		 FROM audit_log WHERE tenant_id = $1
		 ORDER BY created_at DESC, seq DESC LIMIT NULLIF($2::int, 0)`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID,
			&details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if len(details) > 0 && string(details) != "{}" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
