package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Runs ---

const runColumns = `id, tenant_id, user_id, conversation_id, identity_id, agent_type, model, provider,
	status, task, tokens_in, tokens_out, cost_usd, error, started_at, completed_at`

func scanRun(row scannable) (run.Run, error) {
	var r run.Run
	err := row.Scan(&r.ID, &r.TenantID, &r.UserID, &r.ConversationID, &r.IdentityID, &r.AgentType,
		&r.Model, &r.Provider, &r.Status, &r.Task, &r.TokensIn, &r.TokensOut, &r.CostUSD, &r.Error,
		&r.StartedAt, &r.CompletedAt)
	return r, err
}

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ID, r.TenantID, r.UserID, r.ConversationID, r.IdentityID, r.AgentType, r.Model, r.Provider,
		r.Status, r.Task, r.TokensIn, r.TokensOut, r.CostUSD, r.Error, r.StartedAt, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, tenantID, id string) (*run.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get run %s", id)
	}
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context, tenantID string, limit int) ([]run.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CompleteRun(ctx context.Context, tenantID, id string, c run.Completion, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_runs SET status = $3, tokens_in = $4, tokens_out = $5, cost_usd = $6, completed_at = $7
		 WHERE id = $1 AND tenant_id = $2 AND status = 'running'`,
		id, tenantID, run.StatusCompleted, c.TokensIn, c.TokensOut, c.CostUSD, at)
	return s.finishRun(ctx, tag.RowsAffected(), err, tenantID, id)
}

func (s *Store) FailRun(ctx context.Context, tenantID, id, message string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_runs SET status = $3, error = $4, completed_at = $5
		 WHERE id = $1 AND tenant_id = $2 AND status = 'running'`,
		id, tenantID, run.StatusFailed, message, at)
	return s.finishRun(ctx, tag.RowsAffected(), err, tenantID, id)
}

// finishRun maps a conditional run update onto not-found and already-finished errors.
func (s *Store) finishRun(ctx context.Context, affected int64, err error, tenantID, id string) error {
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if affected > 0 {
		return nil
	}
	ok, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM agent_runs WHERE id = $1 AND tenant_id = $2)`, id, tenantID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("finish run %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("run %s is already finished: %w", id, domain.ErrConflict)
}

// --- Tool calls ---

func (s *Store) AppendToolCalls(ctx context.Context, calls []run.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for i := range calls {
		c := &calls[i]
		input := []byte(c.Input)
		if len(input) == 0 {
			input = []byte("{}")
		}
		b.Queue(
			`INSERT INTO tool_calls (id, run_id, tenant_id, name, connector_id, input, output, status, duration_ms, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, c.RunID, c.TenantID, c.Name, c.ConnectorID, input, c.Output, c.Status, c.DurationMs, c.CreatedAt)
	}
	br := s.pool.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()
	for range calls {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("append tool calls: %w", err)
		}
	}
	return nil
}

func (s *Store) ListToolCalls(ctx context.Context, tenantID, runID string) ([]run.ToolCall, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, tenant_id, name, connector_id, input, output, status, duration_ms, created_at
		 FROM tool_calls WHERE tenant_id = $1 AND run_id = $2 ORDER BY created_at ASC`,
		tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	var out []run.ToolCall
	for rows.Next() {
		var c run.ToolCall
		var input []byte
		if err := rows.Scan(&c.ID, &c.RunID, &c.TenantID, &c.Name, &c.ConnectorID, &input,
			&c.Output, &c.Status, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		c.Input = input
		out = append(out, c)
	}
	return out, rows.Err()
}
