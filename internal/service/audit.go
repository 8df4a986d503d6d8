package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
)

// AuditService writes the append-only audit log. Record never fails the
// caller: sink errors are logged and dropped.
type AuditService struct {
	store database.AuditStore
	queue messagequeue.Queue
	now   func() time.Time
}

// NewAuditService creates an AuditService. queue may be nil.
func NewAuditService(store database.AuditStore, queue messagequeue.Queue) *AuditService {
	return &AuditService{store: store, queue: queue, now: time.Now}
}

// Record appends e, filling ID and timestamp.
func (s *AuditService) Record(ctx context.Context, e audit.Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	if err := s.store.AppendAudit(context.WithoutCancel(ctx), &e); err != nil {
		slog.Warn("audit write failed", "action", e.Action, "tenant_id", e.TenantID, "error", err)
	}
	if strings.HasPrefix(e.Action, "governor.") {
		publishEvent(ctx, s.queue, messagequeue.SubjectGovernorDecision, e)
	}
}

// List returns the most recent entries for a tenant.
func (s *AuditService) List(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAudit(ctx, tenantID, limit)
}
