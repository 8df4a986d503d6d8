// Package memstore is an in-memory implementation of the database store
// port, used for local development and service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/domain/tenant"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

var _ database.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one mutex. Values are copied
// on the way in and out so callers never share mutable state.
type Store struct {
	mu sync.Mutex

	runs          map[string]run.Run
	toolCalls     []run.ToolCall
	conversations map[string]conversation.Conversation
	messages      map[string][]conversation.Message
	policies      map[string]policy.Policy
	approvals     map[string]approval.Request
	agentBudgets  map[string]budget.AgentBudget
	tenantBudgets map[string]budget.TenantBudget
	costRecords   []cost.Record
	dailyCosts    map[string]cost.DailyCost
	identities    map[string]identity.Identity
	auditLog      []audit.Entry
	tenants       map[string]tenant.Tenant
	breakers      map[string]resilience.Snapshot
}

// New creates an empty store.
func New() *Store {
	return &Store{
		runs:          make(map[string]run.Run),
		conversations: make(map[string]conversation.Conversation),
		messages:      make(map[string][]conversation.Message),
		policies:      make(map[string]policy.Policy),
		approvals:     make(map[string]approval.Request),
		agentBudgets:  make(map[string]budget.AgentBudget),
		tenantBudgets: make(map[string]budget.TenantBudget),
		dailyCosts:    make(map[string]cost.DailyCost),
		identities:    make(map[string]identity.Identity),
		tenants:       make(map[string]tenant.Tenant),
		breakers:      make(map[string]resilience.Snapshot),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// --- Runs ---

func (s *Store) CreateRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; ok {
		return fmt.Errorf("run %s: %w", r.ID, domain.ErrConflict)
	}
	s.runs[r.ID] = *r
	return nil
}

func (s *Store) GetRun(_ context.Context, tenantID, id string) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.TenantID != tenantID {
		return nil, notFound("run", id)
	}
	return &r, nil
}

func (s *Store) ListRuns(_ context.Context, tenantID string, limit int) ([]run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []run.Run
	for _, r := range s.runs {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) finishRun(tenantID, id string, fn func(*run.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.TenantID != tenantID {
		return notFound("run", id)
	}
	if r.Status != run.StatusRunning {
		return fmt.Errorf("run %s is %s: %w", id, r.Status, domain.ErrConflict)
	}
	fn(&r)
	s.runs[id] = r
	return nil
}

func (s *Store) CompleteRun(_ context.Context, tenantID, id string, c run.Completion, at time.Time) error {
	return s.finishRun(tenantID, id, func(r *run.Run) {
		r.Status = run.StatusCompleted
		r.TokensIn, r.TokensOut, r.CostUSD = c.TokensIn, c.TokensOut, c.CostUSD
		r.CompletedAt = &at
	})
}

func (s *Store) FailRun(_ context.Context, tenantID, id, message string, at time.Time) error {
	return s.finishRun(tenantID, id, func(r *run.Run) {
		r.Status = run.StatusFailed
		r.Error = message
		r.CompletedAt = &at
	})
}

func (s *Store) AppendToolCalls(_ context.Context, calls []run.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls = append(s.toolCalls, calls...)
	return nil
}

func (s *Store) ListToolCalls(_ context.Context, tenantID, runID string) ([]run.ToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []run.ToolCall
	for _, c := range s.toolCalls {
		if c.TenantID == tenantID && c.RunID == runID {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Conversations ---

func (s *Store) CreateConversation(_ context.Context, c *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = *c
	return nil
}

func (s *Store) GetConversation(_ context.Context, tenantID, id string) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.TenantID != tenantID {
		return nil, notFound("conversation", id)
	}
	return &c, nil
}

func (s *Store) AppendMessage(_ context.Context, m *conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[m.ConversationID]
	if !ok || c.TenantID != m.TenantID {
		return notFound("conversation", m.ConversationID)
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	c.UpdatedAt = m.CreatedAt
	s.conversations[c.ID] = c
	return nil
}

func (s *Store) RecentMessages(_ context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, notFound("conversation", conversationID)
	}
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// --- Policies ---

func (s *Store) ListPolicies(_ context.Context, tenantID string) ([]policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []policy.Policy
	for _, p := range s.policies {
		if p.TenantID == tenantID {
			out = append(out, clonePolicy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetPolicy(_ context.Context, tenantID, id string) (*policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok || p.TenantID != tenantID {
		return nil, notFound("policy", id)
	}
	p = clonePolicy(p)
	return &p, nil
}

func (s *Store) CreatePolicy(_ context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; ok {
		return fmt.Errorf("policy %s: %w", p.ID, domain.ErrConflict)
	}
	s.policies[p.ID] = clonePolicy(*p)
	return nil
}

func (s *Store) UpdatePolicy(_ context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.policies[p.ID]
	if !ok || cur.TenantID != p.TenantID {
		return notFound("policy", p.ID)
	}
	s.policies[p.ID] = clonePolicy(*p)
	return nil
}

func (s *Store) DeletePolicy(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok || p.TenantID != tenantID {
		return notFound("policy", id)
	}
	delete(s.policies, id)
	return nil
}

func clonePolicy(p policy.Policy) policy.Policy {
	p.AgentTypes = append([]string(nil), p.AgentTypes...)
	return p
}

// --- Approvals ---

func (s *Store) CreateApproval(_ context.Context, r *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[r.ID] = *r
	return nil
}

func (s *Store) GetApproval(_ context.Context, tenantID, id string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.approvals[id]
	if !ok || r.TenantID != tenantID {
		return nil, notFound("approval", id)
	}
	return &r, nil
}

func (s *Store) ListApprovals(_ context.Context, tenantID string, status approval.Status) ([]approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []approval.Request
	for _, r := range s.approvals {
		if r.TenantID == tenantID && (status == "" || r.Status == status) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ResolveApproval(_ context.Context, tenantID, id string, status approval.Status, res approval.Resolution, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.approvals[id]
	if !ok || r.TenantID != tenantID {
		return false, notFound("approval", id)
	}
	if r.Status != approval.StatusPending {
		return false, nil
	}
	r.Status = status
	r.ReviewerID = res.ReviewerID
	r.ReviewerNote = res.Note
	r.ResolvedAt = &at
	s.approvals[id] = r
	return true, nil
}

// --- Ledger ---

func (s *Store) GetAgentBudget(_ context.Context, agentID string) (*budget.AgentBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.agentBudgets[agentID]
	if !ok {
		return nil, notFound("agent budget", agentID)
	}
	return &b, nil
}

func (s *Store) UpsertAgentBudget(_ context.Context, b *budget.AgentBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb := *b
	nb.UsedTokens, nb.UsedCostUSD = 0, 0
	s.agentBudgets[b.AgentID] = nb
	return nil
}

func (s *Store) IncrementAgentUsage(_ context.Context, agentID string, tokens int64, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.agentBudgets[agentID]
	if !ok {
		return notFound("agent budget", agentID)
	}
	b.UsedTokens += tokens
	b.UsedCostUSD += costUSD
	s.agentBudgets[agentID] = b
	return nil
}

func (s *Store) AppendCostRecord(_ context.Context, r *cost.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *r
	if r.Usage != nil {
		u := *r.Usage
		rec.Usage = &u
	}
	s.costRecords = append(s.costRecords, rec)
	return nil
}

func (s *Store) ListCostRecords(_ context.Context, agentID string, limit int) ([]cost.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cost.Record
	for i := len(s.costRecords) - 1; i >= 0; i-- {
		if s.costRecords[i].AgentID == agentID {
			out = append(out, s.costRecords[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) GetTenantBudget(_ context.Context, tenantID string) (*budget.TenantBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.tenantBudgets[tenantID]
	if !ok {
		return nil, notFound("tenant budget", tenantID)
	}
	return &b, nil
}

func (s *Store) UpsertTenantBudget(_ context.Context, b *budget.TenantBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenantBudgets[b.TenantID] = *b
	return nil
}

func (s *Store) SumTenantCost(_ context.Context, tenantID string, from, to time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, r := range s.costRecords {
		if r.TenantID == tenantID && !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			sum += r.CostUSD
		}
	}
	return sum, nil
}

func (s *Store) AddDailyCost(_ context.Context, d cost.DailyCost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.TenantID + "|" + d.Date
	cur := s.dailyCosts[key]
	cur.TenantID, cur.Date = d.TenantID, d.Date
	cur.CostUSD += d.CostUSD
	cur.TokensIn += d.TokensIn
	cur.TokensOut += d.TokensOut
	cur.RunCount += d.RunCount
	s.dailyCosts[key] = cur
	return nil
}

func (s *Store) ListDailyCosts(_ context.Context, tenantID, from, to string) ([]cost.DailyCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cost.DailyCost
	for _, d := range s.dailyCosts {
		if d.TenantID == tenantID && d.Date >= from && d.Date <= to {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// --- Identities ---

func (s *Store) CreateIdentity(_ context.Context, id *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id.ID]; ok {
		return fmt.Errorf("identity %s: %w", id.ID, domain.ErrConflict)
	}
	s.identities[id.ID] = cloneIdentity(*id)
	return nil
}

func (s *Store) GetIdentity(_ context.Context, id string) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[id]
	if !ok {
		return nil, notFound("identity", id)
	}
	i = cloneIdentity(i)
	return &i, nil
}

func (s *Store) ListIdentities(_ context.Context, tenantID string) ([]identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []identity.Identity
	for _, i := range s.identities {
		if i.TenantID == tenantID {
			out = append(out, cloneIdentity(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateIdentity(_ context.Context, id string, fn func(*identity.Identity) error) (*identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.identities[id]
	if !ok {
		return nil, notFound("identity", id)
	}
	next := cloneIdentity(cur)
	if err := fn(&next); err != nil {
		return nil, err
	}
	s.identities[id] = cloneIdentity(next)
	return &next, nil
}

func cloneIdentity(i identity.Identity) identity.Identity {
	i.Contract.AllowedTools = append([]string(nil), i.Contract.AllowedTools...)
	i.Contract.AllowedConnectors = append([]string(nil), i.Contract.AllowedConnectors...)
	return i
}

// --- Audit ---

func (s *Store) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = append(s.auditLog, *e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for i := len(s.auditLog) - 1; i >= 0; i-- {
		if s.auditLog[i].TenantID == tenantID {
			out = append(out, s.auditLog[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// --- Tenants ---

func (s *Store) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, notFound("tenant", id)
	}
	return &t, nil
}

func (s *Store) UpsertTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = *t
	return nil
}

// --- Breakers ---

func (s *Store) SaveBreaker(_ context.Context, snap resilience.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[snap.ConnectorID] = snap
	return nil
}

func (s *Store) ListBreakers(_ context.Context) ([]resilience.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]resilience.Snapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out, nil
}
