// Package database defines the database store port (interfaces).
//
// Every tenant-owned row is read and written with an explicit tenant id.
package database

import (
	"context"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/domain/tenant"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// RunStore persists agent runs and their tool calls.
type RunStore interface {
	CreateRun(ctx context.Context, r *run.Run) error
	GetRun(ctx context.Context, tenantID, id string) (*run.Run, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]run.Run, error)
	// CompleteRun and FailRun only affect runs still in running state.
	CompleteRun(ctx context.Context, tenantID, id string, c run.Completion, at time.Time) error
	FailRun(ctx context.Context, tenantID, id, message string, at time.Time) error

	AppendToolCalls(ctx context.Context, calls []run.ToolCall) error
	ListToolCalls(ctx context.Context, tenantID, runID string) ([]run.ToolCall, error)
}

// ConversationStore persists conversations and their append-only messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c *conversation.Conversation) error
	GetConversation(ctx context.Context, tenantID, id string) (*conversation.Conversation, error)
	AppendMessage(ctx context.Context, m *conversation.Message) error
	// RecentMessages returns up to limit most recent messages, oldest first.
	RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error)
}

// PolicyStore persists tenant policies.
type PolicyStore interface {
	ListPolicies(ctx context.Context, tenantID string) ([]policy.Policy, error)
	GetPolicy(ctx context.Context, tenantID, id string) (*policy.Policy, error)
	CreatePolicy(ctx context.Context, p *policy.Policy) error
	UpdatePolicy(ctx context.Context, p *policy.Policy) error
	DeletePolicy(ctx context.Context, tenantID, id string) error
}

// ApprovalStore persists approval requests.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, r *approval.Request) error
	GetApproval(ctx context.Context, tenantID, id string) (*approval.Request, error)
	ListApprovals(ctx context.Context, tenantID string, status approval.Status) ([]approval.Request, error)
	// ResolveApproval moves a pending request to status. It reports false,
	// without error, when the request exists but is no longer pending.
	ResolveApproval(ctx context.Context, tenantID, id string, status approval.Status, res approval.Resolution, at time.Time) (bool, error)
}

// LedgerStore persists budgets, the cost ledger and daily aggregates.
type LedgerStore interface {
	GetAgentBudget(ctx context.Context, agentID string) (*budget.AgentBudget, error)
	// UpsertAgentBudget replaces limits and resets used counters.
	UpsertAgentBudget(ctx context.Context, b *budget.AgentBudget) error
	// IncrementAgentUsage atomically adds to the used counters. Returns
	// ErrNotFound when the agent has no budget.
	IncrementAgentUsage(ctx context.Context, agentID string, tokens int64, costUSD float64) error

	AppendCostRecord(ctx context.Context, r *cost.Record) error
	ListCostRecords(ctx context.Context, agentID string, limit int) ([]cost.Record, error)

	GetTenantBudget(ctx context.Context, tenantID string) (*budget.TenantBudget, error)
	UpsertTenantBudget(ctx context.Context, b *budget.TenantBudget) error
	// SumTenantCost sums cost records with from <= created_at < to.
	SumTenantCost(ctx context.Context, tenantID string, from, to time.Time) (float64, error)

	// AddDailyCost atomically adds d to the tenant-day aggregate.
	AddDailyCost(ctx context.Context, d cost.DailyCost) error
	ListDailyCosts(ctx context.Context, tenantID string, from, to string) ([]cost.DailyCost, error)
}

// IdentityStore persists agent identities.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, id *identity.Identity) error
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)
	ListIdentities(ctx context.Context, tenantID string) ([]identity.Identity, error)
	// UpdateIdentity applies fn to the current row under a row lock and
	// persists the result. Concurrent updates to one identity serialize.
	UpdateIdentity(ctx context.Context, id string, fn func(*identity.Identity) error) (*identity.Identity, error)
}

// AuditStore is the append-only audit sink.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *audit.Entry) error
	ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error)
}

// TenantStore persists tenants.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	UpsertTenant(ctx context.Context, t *tenant.Tenant) error
}

// BreakerStore persists circuit breaker snapshots across restarts.
type BreakerStore interface {
	SaveBreaker(ctx context.Context, s resilience.Snapshot) error
	ListBreakers(ctx context.Context) ([]resilience.Snapshot, error)
}

// Store is the composite port implemented by every database adapter.
type Store interface {
	RunStore
	ConversationStore
	PolicyStore
	ApprovalStore
	LedgerStore
	IdentityStore
	AuditStore
	TenantStore
	BreakerStore
}
