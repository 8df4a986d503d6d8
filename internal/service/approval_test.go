package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

func openApproval(t *testing.T, env *govEnv) *approval.Request {
	t.Helper()
	req, err := env.approvals.Create(context.Background(), approval.CreateRequest{
		TenantID: "t1", RequesterID: "user-1", Action: "payment.process", AgentType: "finance",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return req
}

func TestApprovalCreatePending(t *testing.T) {
	env := newGovEnv(t)
	req := openApproval(t, env)
	if req.ID == "" || req.Status != approval.StatusPending || req.CreatedAt.IsZero() {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.ResolvedAt != nil {
		t.Fatal("pending request must not have resolved_at")
	}
	if env.queue.count(messagequeue.SubjectApprovalRequested) != 1 {
		t.Fatal("expected approvals.requested event")
	}
}

func TestApprovalCreateValidation(t *testing.T) {
	env := newGovEnv(t)
	_, err := env.approvals.Create(context.Background(), approval.CreateRequest{TenantID: "t1", Action: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestApprovalApproveOnce(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	req := openApproval(t, env)

	approved, err := env.approvals.Approve(ctx, "t1", req.ID, approval.Resolution{ReviewerID: "admin", Note: "ok"})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != approval.StatusApproved || approved.ReviewerID != "admin" || approved.ResolvedAt == nil {
		t.Fatalf("unexpected approved request %+v", approved)
	}

	// A second resolution is a no-op.
	again, err := env.approvals.Deny(ctx, "t1", req.ID, approval.Resolution{ReviewerID: "other"})
	if err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if again.Status != approval.StatusApproved || again.ReviewerID != "admin" {
		t.Fatalf("resolved request changed: %+v", again)
	}
	if got := countOf(env.auditActions(t, "t1"), audit.ActionApprovalResolved); got != 1 {
		t.Fatalf("expected one resolution audit, got %d", got)
	}
	if env.queue.count(messagequeue.SubjectApprovalResolved) != 1 {
		t.Fatal("expected one approvals.resolved event")
	}

	pending, _ := env.approvals.ListPending(ctx, "t1")
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %d", len(pending))
	}
}

func TestApprovalResolveRequiresReviewer(t *testing.T) {
	env := newGovEnv(t)
	req := openApproval(t, env)
	_, err := env.approvals.Approve(context.Background(), "t1", req.ID, approval.Resolution{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestApprovalResolveUnknown(t *testing.T) {
	env := newGovEnv(t)
	_, err := env.approvals.Approve(context.Background(), "t1", "missing", approval.Resolution{ReviewerID: "admin"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprovalStatus(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	req := openApproval(t, env)

	st, err := env.approvals.Status(ctx, "t1", req.ID)
	if err != nil || st != approval.StatusPending {
		t.Fatalf("expected pending, got %q %v", st, err)
	}
	st, err = env.approvals.Status(ctx, "t1", "gone")
	if err != nil || st != approval.StatusExpired {
		t.Fatalf("expected expired, got %q %v", st, err)
	}
	// Requests are tenant scoped.
	st, _ = env.approvals.Status(ctx, "t2", req.ID)
	if st != approval.StatusExpired {
		t.Fatalf("expected expired for foreign tenant, got %q", st)
	}
}

func TestApprovalHandleResolveMessage(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	req := openApproval(t, env)

	msg, _ := json.Marshal(service.ResolveMessage{
		TenantID: "t1", ApprovalID: req.ID, Status: approval.StatusDenied, ReviewerID: "admin", Note: "too large",
	})
	if err := env.approvals.HandleResolveMessage(ctx, messagequeue.SubjectApprovalResolve, msg); err != nil {
		t.Fatalf("HandleResolveMessage: %v", err)
	}
	got, _ := env.approvals.Get(ctx, "t1", req.ID)
	if got.Status != approval.StatusDenied || got.ReviewerNote != "too large" {
		t.Fatalf("unexpected request %+v", got)
	}

	bad, _ := json.Marshal(service.ResolveMessage{TenantID: "t1", ApprovalID: req.ID, Status: "maybe", ReviewerID: "admin"})
	if err := env.approvals.HandleResolveMessage(ctx, messagequeue.SubjectApprovalResolve, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := env.approvals.HandleResolveMessage(ctx, messagequeue.SubjectApprovalResolve, []byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
