package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
)

// ApprovalService runs the human-in-the-loop approval workflow.
type ApprovalService struct {
	store database.ApprovalStore
	audit *AuditService
	queue messagequeue.Queue
	now   func() time.Time
}

// NewApprovalService creates an ApprovalService. queue may be nil.
func NewApprovalService(store database.ApprovalStore, auditSvc *AuditService, queue messagequeue.Queue) *ApprovalService {
	return &ApprovalService{store: store, audit: auditSvc, queue: queue, now: time.Now}
}

// Create opens a pending approval request.
func (s *ApprovalService) Create(ctx context.Context, req approval.CreateRequest) (*approval.Request, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	r := &approval.Request{
		ID:            uuid.NewString(),
		TenantID:      req.TenantID,
		RequesterID:   req.RequesterID,
		Action:        req.Action,
		AgentType:     req.AgentType,
		ResourceType:  req.ResourceType,
		EstimatedCost: req.EstimatedCost,
		PolicyID:      req.PolicyID,
		Status:        approval.StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateApproval(ctx, r); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}
	publishEvent(ctx, s.queue, messagequeue.SubjectApprovalRequested, r)
	return r, nil
}

// Get returns one request.
func (s *ApprovalService) Get(ctx context.Context, tenantID, id string) (*approval.Request, error) {
	return s.store.GetApproval(ctx, tenantID, id)
}

// Status reports the request's status. A request without a record is
// reported as expired.
func (s *ApprovalService) Status(ctx context.Context, tenantID, id string) (approval.Status, error) {
	r, err := s.store.GetApproval(ctx, tenantID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return approval.StatusExpired, nil
	}
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

// ListPending returns the tenant's pending requests, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, tenantID string) ([]approval.Request, error) {
	return s.store.ListApprovals(ctx, tenantID, approval.StatusPending)
}

// Approve resolves a pending request as approved.
func (s *ApprovalService) Approve(ctx context.Context, tenantID, id string, res approval.Resolution) (*approval.Request, error) {
	return s.resolve(ctx, tenantID, id, approval.StatusApproved, res)
}

// Deny resolves a pending request as denied.
func (s *ApprovalService) Deny(ctx context.Context, tenantID, id string, res approval.Resolution) (*approval.Request, error) {
	return s.resolve(ctx, tenantID, id, approval.StatusDenied, res)
}

// resolve applies status when the request is still pending. Resolving an
// already resolved request changes nothing and returns it as stored.
func (s *ApprovalService) resolve(ctx context.Context, tenantID, id string, status approval.Status, res approval.Resolution) (*approval.Request, error) {
	if res.ReviewerID == "" {
		return nil, fmt.Errorf("reviewer_id is required: %w", domain.ErrValidation)
	}
	changed, err := s.store.ResolveApproval(ctx, tenantID, id, status, res, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve approval %s: %w", id, err)
	}
	r, err := s.store.GetApproval(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		slog.Info("approval already resolved", "approval_id", id, "status", r.Status)
		return r, nil
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID:     tenantID,
		Actor:        res.ReviewerID,
		Action:       audit.ActionApprovalResolved,
		ResourceType: "approval",
		ResourceID:   id,
		Details:      map[string]any{"status": string(status), "action": r.Action, "note": res.Note},
	})
	publishEvent(ctx, s.queue, messagequeue.SubjectApprovalResolved, r)
	return r, nil
}

// ResolveMessage is the inbound payload on the approvals.resolve subject.
type ResolveMessage struct {
	TenantID   string          `json:"tenant_id"`
	ApprovalID string          `json:"approval_id"`
	Status     approval.Status `json:"status"`
	ReviewerID string          `json:"reviewer_id"`
	Note       string          `json:"note,omitempty"`
}

// HandleResolveMessage is a messagequeue.Handler applying remote resolutions.
func (s *ApprovalService) HandleResolveMessage(ctx context.Context, _ string, data []byte) error {
	var m ResolveMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode resolve message: %w", err)
	}
	res := approval.Resolution{ReviewerID: m.ReviewerID, Note: m.Note}
	var err error
	switch m.Status {
	case approval.StatusApproved:
		_, err = s.Approve(ctx, m.TenantID, m.ApprovalID, res)
	case approval.StatusDenied:
		_, err = s.Deny(ctx, m.TenantID, m.ApprovalID, res)
	default:
		return fmt.Errorf("resolve message %s: invalid status %q: %w", m.ApprovalID, m.Status, domain.ErrValidation)
	}
	return err
}
