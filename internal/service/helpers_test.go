package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/memstore"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

var errStoreDown = errors.New("store unavailable")

// --- Queue ---

type published struct {
	subject string
	data    []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]messagequeue.Handler
}

var _ messagequeue.Queue = (*fakeQueue)(nil)

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, published{subject: subject, data: data})
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.messages {
		if m.subject == subject {
			n++
		}
	}
	return n
}

// --- Store with injectable failures ---

type flakyStore struct {
	*memstore.Store
	failPolicies  bool
	failBudgets   bool
	failApprovals bool
	failIdentity  bool
	failAudit     bool
}

func (f *flakyStore) ListPolicies(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	if f.failPolicies {
		return nil, errStoreDown
	}
	return f.Store.ListPolicies(ctx, tenantID)
}

func (f *flakyStore) GetTenantBudget(ctx context.Context, tenantID string) (*budget.TenantBudget, error) {
	if f.failBudgets {
		return nil, errStoreDown
	}
	return f.Store.GetTenantBudget(ctx, tenantID)
}

func (f *flakyStore) GetAgentBudget(ctx context.Context, agentID string) (*budget.AgentBudget, error) {
	if f.failBudgets {
		return nil, errStoreDown
	}
	return f.Store.GetAgentBudget(ctx, agentID)
}

func (f *flakyStore) CreateApproval(ctx context.Context, r *approval.Request) error {
	if f.failApprovals {
		return errStoreDown
	}
	return f.Store.CreateApproval(ctx, r)
}

func (f *flakyStore) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	if f.failIdentity {
		return nil, errStoreDown
	}
	return f.Store.GetIdentity(ctx, id)
}

func (f *flakyStore) AppendAudit(ctx context.Context, e *audit.Entry) error {
	if f.failAudit {
		return errStoreDown
	}
	return f.Store.AppendAudit(ctx, e)
}

// --- Governance wiring ---

type govEnv struct {
	store      *flakyStore
	queue      *fakeQueue
	audit      *service.AuditService
	policies   *service.PolicyService
	approvals  *service.ApprovalService
	budgets    *service.BudgetService
	identities *service.IdentityService
	governor   *service.Governor
}

func newGovEnv(t *testing.T, presets ...policy.Policy) *govEnv {
	t.Helper()
	store := &flakyStore{Store: memstore.New()}
	return newGovEnvWith(store, presets...)
}

func newGovEnvWith(store *flakyStore, presets ...policy.Policy) *govEnv {
	var db database.Store = store
	cfg := config.Defaults()
	queue := &fakeQueue{}
	sensitive := policy.NewSensitiveSet(cfg.Governor.SensitiveActions)

	auditSvc := service.NewAuditService(db, queue)
	policies := service.NewPolicyService(db, nil, time.Minute, presets)
	approvals := service.NewApprovalService(db, auditSvc, queue)
	budgets := service.NewBudgetService(db, nil, cfg.Budget)
	identities := service.NewIdentityService(db, auditSvc, queue, sensitive)
	gov := service.NewGovernor(policies, approvals, budgets, auditSvc, sensitive)

	return &govEnv{
		store:      store,
		queue:      queue,
		audit:      auditSvc,
		policies:   policies,
		approvals:  approvals,
		budgets:    budgets,
		identities: identities,
		governor:   gov,
	}
}

func (e *govEnv) budgetsConfig() config.Budget { return config.Defaults().Budget }

func (e *govEnv) auditActions(t *testing.T, tenantID string) []string {
	t.Helper()
	entries, err := e.store.ListAudit(context.Background(), tenantID, 500)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	out := make([]string, len(entries))
	for i, en := range entries {
		out[i] = en.Action
	}
	return out
}

func countOf(items []string, want string) int {
	n := 0
	for _, it := range items {
		if it == want {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }

// --- LLM ---

type fakeLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	block     bool
	requests  []llm.Request
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block, err := f.block, f.err
	var resp *llm.Response
	if err == nil && len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.Response{Content: "ok"}, nil
	}
	if req.OnToken != nil && resp.Content != "" {
		req.OnToken(resp.Content)
	}
	return resp, nil
}

func (f *fakeLLM) calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// --- Broadcaster ---

type hubEvent struct {
	tenantID  string
	eventType string
	payload   any
}

type fakeHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (h *fakeHub) BroadcastEvent(_ context.Context, tenantID, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{tenantID: tenantID, eventType: eventType, payload: payload})
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.eventType
	}
	return out
}

// --- Cache ---

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    int
	failAll bool
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failAll {
		return nil, false, errStoreDown
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errStoreDown
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
