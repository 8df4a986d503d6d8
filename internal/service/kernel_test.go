package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/agent"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/port/broadcast"
	"github.com/multivitaminds/signof-sub014/internal/port/connector"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

type kernelEnv struct {
	*govEnv
	llm      *fakeLLM
	hub      *fakeHub
	breakers *service.BreakerService
	kernel   *service.Kernel
}

func newKernelEnv(t *testing.T, mutate ...func(*config.Config)) *kernelEnv {
	t.Helper()
	env := newGovEnv(t)
	cfg := config.Defaults()
	cfg.Selector.Providers = []string{"openai", "anthropic"}
	for _, m := range mutate {
		m(&cfg)
	}

	fake := &fakeLLM{}
	hub := &fakeHub{}
	breakers := service.NewBreakerService(cfg.Breaker, env.store, env.queue)

	tools := connector.NewRegistry()
	tools.RegisterLocal(connector.Tool{Name: "clock", Description: "Current time"}, func(context.Context, json.RawMessage) (string, error) {
		return "12:00", nil
	})
	exec := service.NewToolExecutor(tools, env.governor, env.identities, breakers.Registry(), time.Second)

	tenants := service.NewTenantService(env.store, nil, time.Minute)
	sel := service.NewSelector(cfg.Selector, tenants, service.AllAvailable{
		service.NewStaticAvailability(cfg.Selector.Providers...),
		service.BreakerAvailability{Breakers: breakers.Registry()},
	})

	k := service.NewKernel(service.KernelDeps{
		Store:      env.store,
		Selector:   sel,
		LLMs:       llm.NewRegistry(fake),
		Tools:      exec,
		Budgets:    env.budgets,
		Identities: env.identities,
		Breakers:   breakers.Registry(),
		Queue:      env.queue,
		Hub:        hub,
	}, cfg.Kernel)

	return &kernelEnv{govEnv: env, llm: fake, hub: hub, breakers: breakers, kernel: k}
}

func userMessage(text string) service.ProcessRequest {
	return service.ProcessRequest{TenantID: "t1", UserID: "user-1", Message: text}
}

func TestKernelProcessMessage(t *testing.T) {
	env := newKernelEnv(t)
	env.llm.responses = []*llm.Response{{Content: "Hello!", Usage: cost.TokenUsage{InputTokens: 600, OutputTokens: 400}}}
	ctx := context.Background()

	resp, err := env.kernel.ProcessMessage(ctx, userMessage("hi there"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.Content != "Hello!" || resp.AgentType != agent.TypeAssistant || resp.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if math.Abs(resp.CostUSD-0.0006) > 1e-12 {
		t.Fatalf("expected cost 0.0006, got %v", resp.CostUSD)
	}

	r, err := env.store.GetRun(ctx, "t1", resp.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != run.StatusCompleted || r.TokensIn != 600 || r.TokensOut != 400 || r.CompletedAt == nil {
		t.Fatalf("unexpected run %+v", r)
	}

	msgs, _ := env.store.RecentMessages(ctx, "t1", resp.ConversationID, 10)
	if len(msgs) != 2 || msgs[0].Content != "hi there" || msgs[1].Model != "gpt-4o-mini" {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	records, _ := env.budgets.CostRecords(ctx, service.AgentKey("t1", "", agent.TypeAssistant), 10)
	if len(records) != 1 || records[0].Usage.Total() != 1000 {
		t.Fatalf("expected one cost record, got %+v", records)
	}
	daily, _ := env.budgets.DailyCosts(ctx, "t1", 1)
	if len(daily) != 1 || daily[0].RunCount != 1 {
		t.Fatalf("expected one daily aggregate, got %+v", daily)
	}

	types := env.hub.types()
	for _, want := range []string{broadcast.EventRunStarted, broadcast.EventRunToken, broadcast.EventRunFinished} {
		if !slices.Contains(types, want) {
			t.Errorf("missing broadcast %s in %v", want, types)
		}
	}
	if env.queue.count(messagequeue.SubjectRunStarted) != 1 || env.queue.count(messagequeue.SubjectRunCompleted) != 1 {
		t.Fatal("expected run lifecycle events")
	}
	if env.breakers.Status(service.LLMBreakerID("openai")).SuccessCount == 0 {
		t.Fatal("expected model call to be recorded on the provider breaker")
	}
}

func TestKernelContinuesConversation(t *testing.T) {
	env := newKernelEnv(t)
	ctx := context.Background()
	first, err := env.kernel.ProcessMessage(ctx, userMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}

	req := userMessage("and again")
	req.ConversationID = first.ConversationID
	if _, err := env.kernel.ProcessMessage(ctx, req); err != nil {
		t.Fatal(err)
	}
	calls := env.llm.calls()
	last := calls[len(calls)-1]
	if len(last.Messages) != 3 {
		t.Fatalf("expected history plus new message, got %+v", last.Messages)
	}

	req.ConversationID = "missing"
	if _, err := env.kernel.ProcessMessage(ctx, req); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKernelToolRoundTrip(t *testing.T) {
	env := newKernelEnv(t)
	env.llm.responses = []*llm.Response{
		{
			Content:   "Let me check.",
			Usage:     cost.TokenUsage{InputTokens: 100, OutputTokens: 20},
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: "clock", Arguments: json.RawMessage(`{}`)}},
		},
		{Content: "It is noon.", Usage: cost.TokenUsage{InputTokens: 150, OutputTokens: 10}},
	}
	ctx := context.Background()

	resp, err := env.kernel.ProcessMessage(ctx, userMessage("what time is it"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.Content != "It is noon." || resp.Usage.Total() != 280 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Status != run.ToolCallSucceeded {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}

	calls := env.llm.calls()
	if len(calls) != 2 {
		t.Fatalf("expected exactly two model calls, got %d", len(calls))
	}
	if len(calls[0].Tools) == 0 {
		t.Fatal("first call should offer tools")
	}
	if len(calls[1].Tools) != 0 {
		t.Fatal("follow-up call must not offer tools")
	}
	followUp := calls[1].Messages[len(calls[1].Messages)-1]
	if !strings.Contains(followUp.Content, "clock [succeeded]: 12:00") {
		t.Fatalf("unexpected tool results turn %q", followUp.Content)
	}

	stored, _ := env.store.ListToolCalls(ctx, "t1", resp.RunID)
	if len(stored) != 1 {
		t.Fatalf("expected stored tool call, got %d", len(stored))
	}
}

func TestKernelModelFailureMarksRunFailed(t *testing.T) {
	env := newKernelEnv(t)
	env.llm.err = errors.New("upstream 500")
	ctx := context.Background()

	_, err := env.kernel.ProcessMessage(ctx, userMessage("hello"))
	var rerr *run.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *run.Error, got %v", err)
	}
	if rerr.Stage != "model_call" {
		t.Fatalf("expected model_call stage, got %s", rerr.Stage)
	}

	r, _ := env.store.GetRun(ctx, "t1", rerr.RunID)
	if r.Status != run.StatusFailed || !strings.Contains(r.Error, "upstream 500") {
		t.Fatalf("unexpected run %+v", r)
	}
	msgs, _ := env.store.RecentMessages(ctx, "t1", r.ConversationID, 10)
	if len(msgs) != 1 {
		t.Fatalf("user message must stay stored, got %d messages", len(msgs))
	}
	if env.queue.count(messagequeue.SubjectRunFailed) != 1 {
		t.Fatal("expected runs.failed event")
	}
	if env.breakers.Status(service.LLMBreakerID("openai")).FailureCount != 1 {
		t.Fatal("expected failure on the provider breaker")
	}
}

func TestKernelProviderBreakerOpenSwitchesProvider(t *testing.T) {
	env := newKernelEnv(t)
	for range 5 {
		env.breakers.RecordFailure(service.LLMBreakerID("openai"))
	}
	resp, err := env.kernel.ProcessMessage(context.Background(), userMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "anthropic" {
		t.Fatalf("expected fallback to anthropic, got %s", resp.Provider)
	}
	if env.breakers.Status(service.LLMBreakerID("openai")).State != resilience.StateOpen {
		t.Fatal("openai breaker should remain open")
	}
}

func TestKernelCancelledCallReleasesBreaker(t *testing.T) {
	env := newKernelEnv(t)
	env.llm.block = true
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := env.kernel.ProcessMessage(ctx, userMessage("hi"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if snap := env.breakers.Status(service.LLMBreakerID("openai")); snap.FailureCount != 0 {
		t.Fatalf("abandoned call must not count as failure, got %+v", snap)
	}

	var rerr *run.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *run.Error, got %v", err)
	}
	bg := context.Background()
	r, err := env.store.GetRun(bg, "t1", rerr.RunID)
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := env.store.RecentMessages(bg, "t1", r.ConversationID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleUser {
		t.Fatalf("only the user message may be stored after cancellation, got %+v", msgs)
	}
}

func TestKernelModelTimeoutDoesNotTripBreaker(t *testing.T) {
	env := newKernelEnv(t, func(c *config.Config) {
		c.Breaker.FailureThreshold = 1
		c.Kernel.ModelTimeout = 20 * time.Millisecond
	})
	env.llm.block = true

	_, err := env.kernel.ProcessMessage(context.Background(), userMessage("hi"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	snap := env.breakers.Status(service.LLMBreakerID("openai"))
	if snap.State != resilience.StateClosed || snap.FailureCount != 1 {
		t.Fatalf("timeout should count without tripping, got %+v", snap)
	}
}

func TestKernelPreflightBudget(t *testing.T) {
	env := newKernelEnv(t)
	ctx := context.Background()
	key := service.AgentKey("t1", "", agent.TypeAssistant)
	if _, err := env.budgets.SetBudget(ctx, budget.SetRequest{AgentID: key, TenantID: "t1", MaxTokens: 1000}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.budgets.RecordUsage(ctx, service.UsageRecord{TenantID: "t1", AgentID: key, Usage: &cost.TokenUsage{InputTokens: 850}}); err != nil {
		t.Fatal(err)
	}

	if _, err := env.kernel.ProcessMessage(ctx, userMessage("hi")); err != nil {
		t.Fatalf("warning must not deny: %v", err)
	}
	if !strings.Contains(env.llm.calls()[0].SystemPrompt, "Budget notice") {
		t.Fatal("expected budget notice in the system prompt")
	}

	if _, err := env.budgets.RecordUsage(ctx, service.UsageRecord{TenantID: "t1", AgentID: key, Usage: &cost.TokenUsage{InputTokens: 200}}); err != nil {
		t.Fatal(err)
	}
	before := len(env.llm.calls())
	_, err := env.kernel.ProcessMessage(ctx, userMessage("hi"))
	if !errors.Is(err, domain.ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if len(env.llm.calls()) != before {
		t.Fatal("exhausted budget must not reach the model")
	}
}

func TestKernelPricingFallback(t *testing.T) {
	env := newKernelEnv(t, func(c *config.Config) {
		c.Selector.Tiers = map[string][]config.ModelRef{"fast": {{Model: "house-model", Provider: "openai"}}}
		c.Kernel.DefaultRatePer1K = 0.002
	})
	env.llm.responses = []*llm.Response{{Content: "ok", Usage: cost.TokenUsage{InputTokens: 1000}}}

	resp, err := env.kernel.ProcessMessage(context.Background(), userMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(resp.CostUSD-0.002) > 1e-12 {
		t.Fatalf("expected default rate cost 0.002, got %v", resp.CostUSD)
	}
}

func TestKernelRequestValidation(t *testing.T) {
	env := newKernelEnv(t)
	ctx := context.Background()
	tests := []struct {
		name string
		req  service.ProcessRequest
	}{
		{"missing tenant", service.ProcessRequest{UserID: "u", Message: "hi"}},
		{"blank message", service.ProcessRequest{TenantID: "t1", UserID: "u", Message: "   "}},
		{"unknown agent type", service.ProcessRequest{TenantID: "t1", UserID: "u", Message: "hi", AgentType: "pirate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.kernel.ProcessMessage(ctx, tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestKernelRetiredIdentity(t *testing.T) {
	env := newKernelEnv(t)
	ctx := context.Background()
	id := newIdentity(t, env.govEnv, identity.Contract{})

	req := userMessage("hi")
	req.IdentityID = id.ID
	if _, err := env.kernel.ProcessMessage(ctx, req); err != nil {
		t.Fatal(err)
	}
	got, _ := env.identities.Get(ctx, id.ID)
	if got.Cycles != 1 {
		t.Fatalf("expected one recorded cycle, got %d", got.Cycles)
	}

	if _, err := env.identities.Retire(ctx, id.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.kernel.ProcessMessage(ctx, req); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestConversationServiceReadsKernelState(t *testing.T) {
	env := newKernelEnv(t)
	ctx := context.Background()
	resp, err := env.kernel.ProcessMessage(ctx, userMessage("hello"))
	if err != nil {
		t.Fatal(err)
	}

	convs := service.NewConversationService(env.store)
	c, err := convs.Get(ctx, "t1", resp.ConversationID)
	if err != nil || c.Title != "hello" {
		t.Fatalf("unexpected conversation %+v %v", c, err)
	}
	msgs, err := convs.Messages(ctx, "t1", resp.ConversationID, 0)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d %v", len(msgs), err)
	}
	runs, _ := convs.Runs(ctx, "t1", 0)
	if len(runs) != 1 || runs[0].ID != resp.RunID {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if _, err := convs.Run(ctx, "t2", resp.RunID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("runs must be tenant scoped, got %v", err)
	}
}
