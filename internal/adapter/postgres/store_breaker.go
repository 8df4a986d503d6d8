package postgres

import (
	"context"
	"fmt"

	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

func (s *Store) SaveBreaker(ctx context.Context, b resilience.Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO circuit_breakers (connector_id, state, failure_count, success_count, failure_threshold,
		                               reset_timeout_ms, half_open_max_tests, last_failure_at, last_success_at,
		                               opened_at, next_retry_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		 ON CONFLICT (connector_id) DO UPDATE SET
		     state = EXCLUDED.state,
		     failure_count = EXCLUDED.failure_count,
		     success_count = EXCLUDED.success_count,
		     failure_threshold = EXCLUDED.failure_threshold,
		     reset_timeout_ms = EXCLUDED.reset_timeout_ms,
		     half_open_max_tests = EXCLUDED.half_open_max_tests,
		     last_failure_at = EXCLUDED.last_failure_at,
		     last_success_at = EXCLUDED.last_success_at,
		     opened_at = EXCLUDED.opened_at,
		     next_retry_at = EXCLUDED.next_retry_at,
		     updated_at = NOW()`,
		b.ConnectorID, b.State, b.FailureCount, b.SuccessCount, b.FailureThreshold, b.ResetTimeoutMs,
		b.HalfOpenMaxTests, b.LastFailureAt, b.LastSuccessAt, b.OpenedAt, b.NextRetryAt)
	if err != nil {
		return fmt.Errorf("save breaker %s: %w", b.ConnectorID, err)
	}
	return nil
}

func (s *Store) ListBreakers(ctx context.Context) ([]resilience.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT connector_id, state, failure_count, success_count, failure_threshold, reset_timeout_ms,
		        half_open_max_tests, last_failure_at, last_success_at, opened_at, next_retry_at
		 FROM circuit_breakers ORDER BY connector_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list breakers: %w", err)
	}
	defer rows.Close()

	var out []resilience.Snapshot
	for rows.Next() {
		var b resilience.Snapshot
		if err := rows.Scan(&b.ConnectorID, &b.State, &b.FailureCount, &b.SuccessCount, &b.FailureThreshold,
			&b.ResetTimeoutMs, &b.HalfOpenMaxTests, &b.LastFailureAt, &b.LastSuccessAt, &b.OpenedAt,
			&b.NextRetryAt); err != nil {
			return nil, fmt.Errorf("scan breaker: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
