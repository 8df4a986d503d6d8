package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/conversation"
	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
)

func TestRunFinalizeOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := &run.Run{ID: "r1", TenantID: "t1", Status: run.StatusRunning, StartedAt: time.Now()}
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteRun(ctx, "t1", "r1", run.Completion{TokensIn: 5, CostUSD: 0.1}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.FailRun(ctx, "t1", "r1", "late", time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second finalize, got %v", err)
	}
	got, err := s.GetRun(ctx, "t1", "r1")
	if err != nil || got.Status != run.StatusCompleted || got.TokensIn != 5 {
		t.Fatalf("unexpected run %+v, %v", got, err)
	}
	if _, err := s.GetRun(ctx, "other", "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected tenant isolation, got %v", err)
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateConversation(ctx, &conversation.Conversation{ID: "c1", TenantID: "t1"})
	for i := range 10 {
		m := &conversation.Message{ID: string(rune('a' + i)), ConversationID: "c1", TenantID: "t1", Role: conversation.RoleUser}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := s.RecentMessages(ctx, "t1", "c1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[0].ID != "h" || msgs[2].ID != "j" {
		t.Fatalf("expected last three oldest first, got %+v", msgs)
	}
	if err := s.AppendMessage(ctx, &conversation.Message{ConversationID: "c1", TenantID: "t2"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected cross-tenant append rejected, got %v", err)
	}
}

func TestResolveApprovalOnlyPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.CreateApproval(ctx, &approval.Request{ID: "a1", TenantID: "t1", Status: approval.StatusPending})

	ok, err := s.ResolveApproval(ctx, "t1", "a1", approval.StatusApproved, approval.Resolution{ReviewerID: "u"}, time.Now())
	if err != nil || !ok {
		t.Fatalf("first resolve: %v %v", ok, err)
	}
	ok, err = s.ResolveApproval(ctx, "t1", "a1", approval.StatusDenied, approval.Resolution{ReviewerID: "v"}, time.Now())
	if err != nil || ok {
		t.Fatalf("second resolve should be a no-op: %v %v", ok, err)
	}
	got, _ := s.GetApproval(ctx, "t1", "a1")
	if got.Status != approval.StatusApproved || got.ReviewerID != "u" {
		t.Fatalf("unexpected approval %+v", got)
	}
}

func TestIncrementAgentUsageConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.UpsertAgentBudget(ctx, &budget.AgentBudget{AgentID: "a", MaxTokens: 1 << 30, UsedTokens: 99})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementAgentUsage(ctx, "a", 10, 0.01)
		}()
	}
	wg.Wait()

	b, _ := s.GetAgentBudget(ctx, "a")
	if b.UsedTokens != 1000 {
		t.Fatalf("expected 1000 tokens (upsert resets counters), got %d", b.UsedTokens)
	}
	if err := s.IncrementAgentUsage(ctx, "none", 1, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSumTenantCostRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	feb := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_ = s.AppendCostRecord(ctx, &cost.Record{TenantID: "t", CostUSD: 1, CreatedAt: feb})
	_ = s.AppendCostRecord(ctx, &cost.Record{TenantID: "t", CostUSD: 2, CreatedAt: mar})
	_ = s.AppendCostRecord(ctx, &cost.Record{TenantID: "u", CostUSD: 4, CreatedAt: mar})

	sum, err := s.SumTenantCost(ctx, "t", cost.MonthStart(mar), mar.Add(time.Hour))
	if err != nil || sum != 2 {
		t.Fatalf("expected 2, got %v %v", sum, err)
	}
}

func TestUpdateIdentityIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := identity.New("i1", identity.CreateRequest{TenantID: "t", Contract: identity.Contract{AllowedTools: []string{"read"}}}, time.Now())
	_ = s.CreateIdentity(ctx, &id)

	got, _ := s.GetIdentity(ctx, "i1")
	got.Contract.AllowedTools[0] = "mutated"

	again, _ := s.GetIdentity(ctx, "i1")
	if again.Contract.AllowedTools[0] != "read" {
		t.Fatal("returned identity must not alias stored state")
	}

	boom := errors.New("boom")
	if _, err := s.UpdateIdentity(ctx, "i1", func(i *identity.Identity) error { i.Cycles = 99; return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	again, _ = s.GetIdentity(ctx, "i1")
	if again.Cycles != 0 {
		t.Fatal("failed update must not persist")
	}
}
