package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
)

// IdentityService manages agent identities, their contracts and the
// reputation derived from recorded lifecycle events.
type IdentityService struct {
	store     database.IdentityStore
	audit     *AuditService
	queue     messagequeue.Queue
	sensitive policy.SensitiveSet
	now       func() time.Time
}

// NewIdentityService creates an IdentityService. queue may be nil.
func NewIdentityService(store database.IdentityStore, auditSvc *AuditService, queue messagequeue.Queue, sensitive policy.SensitiveSet) *IdentityService {
	return &IdentityService{store: store, audit: auditSvc, queue: queue, sensitive: sensitive, now: time.Now}
}

// Create registers a new identity.
func (s *IdentityService) Create(ctx context.Context, req identity.CreateRequest) (*identity.Identity, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required: %w", domain.ErrValidation)
	}
	if req.AgentType == "" {
		return nil, fmt.Errorf("agent_type is required: %w", domain.ErrValidation)
	}
	if req.DisplayName == "" {
		req.DisplayName = req.AgentType
	}
	id := identity.New(uuid.NewString(), req, s.now().UTC())
	if err := s.store.CreateIdentity(ctx, &id); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	slog.Info("identity created", "identity_id", id.ID, "tenant_id", id.TenantID, "agent_type", id.AgentType)
	return &id, nil
}

// Get returns one identity.
func (s *IdentityService) Get(ctx context.Context, id string) (*identity.Identity, error) {
	return s.store.GetIdentity(ctx, id)
}

// List returns the tenant's identities.
func (s *IdentityService) List(ctx context.Context, tenantID string) ([]identity.Identity, error) {
	return s.store.ListIdentities(ctx, tenantID)
}

// CheckContract evaluates a against the identity's contract. When the
// identity cannot be loaded, sensitive actions deny and all others allow.
func (s *IdentityService) CheckContract(ctx context.Context, identityID string, a identity.ContractAction) identity.ContractResult {
	id, err := s.store.GetIdentity(ctx, identityID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("identity lookup failed", "identity_id", identityID, "error", err)
		}
		if s.sensitive.Contains(a.Action) {
			return identity.ContractResult{Reason: fmt.Sprintf("identity %s unavailable for sensitive action %s", identityID, a.Action)}
		}
		return identity.ContractResult{Allowed: true, Reason: "no identity contract on record"}
	}
	return id.Check(a)
}

func (s *IdentityService) update(ctx context.Context, identityID string, fn func(*identity.Identity) error) (*identity.Identity, error) {
	id, err := s.store.UpdateIdentity(ctx, identityID, func(i *identity.Identity) error {
		if err := fn(i); err != nil {
			return err
		}
		i.Recompute()
		i.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update identity %s: %w", identityID, err)
	}
	return id, nil
}

func increment(counter func(*identity.Identity) *int64) func(*identity.Identity) error {
	return func(i *identity.Identity) error {
		*counter(i)++
		return nil
	}
}

// RecordAction counts one executed action.
func (s *IdentityService) RecordAction(ctx context.Context, identityID string) (*identity.Identity, error) {
	return s.update(ctx, identityID, increment(func(i *identity.Identity) *int64 { return &i.ActionsExecuted }))
}

// RecordError counts one failed action. The action itself is counted by
// RecordAction.
func (s *IdentityService) RecordError(ctx context.Context, identityID string) (*identity.Identity, error) {
	return s.update(ctx, identityID, increment(func(i *identity.Identity) *int64 { return &i.Errors }))
}

// RecordDeployment counts one deployment.
func (s *IdentityService) RecordDeployment(ctx context.Context, identityID string) (*identity.Identity, error) {
	return s.update(ctx, identityID, increment(func(i *identity.Identity) *int64 { return &i.Deployments }))
}

// RecordCycle counts one completed run.
func (s *IdentityService) RecordCycle(ctx context.Context, identityID string) (*identity.Identity, error) {
	return s.update(ctx, identityID, increment(func(i *identity.Identity) *int64 { return &i.Cycles }))
}

// RecordRepair counts one self-repair.
func (s *IdentityService) RecordRepair(ctx context.Context, identityID string) (*identity.Identity, error) {
	return s.update(ctx, identityID, increment(func(i *identity.Identity) *int64 { return &i.Repairs }))
}

// RecordContractViolation counts a violation, audits it and publishes it.
func (s *IdentityService) RecordContractViolation(ctx context.Context, identityID string, a identity.ContractAction, result identity.ContractResult) (*identity.Identity, error) {
	id, err := s.update(ctx, identityID, increment(func(i *identity.Identity) *int64 { return &i.ContractViolations }))
	if err != nil {
		return nil, err
	}
	details := map[string]any{
		"class":          string(a.Class),
		"name":           a.Name,
		"violation_type": string(result.ViolationType),
		"reason":         result.Reason,
	}
	s.audit.Record(ctx, audit.Entry{
		TenantID:     id.TenantID,
		Actor:        identityID,
		Action:       audit.ActionContractViolation,
		ResourceType: "identity",
		ResourceID:   identityID,
		Details:      details,
	})
	publishEvent(ctx, s.queue, messagequeue.SubjectIdentityViolation, messagequeue.IdentityViolationPayload{
		IdentityID: identityID,
		TenantID:   id.TenantID,
		Details:    details,
	})
	return id, nil
}

// Retire marks the identity retired. Retired identities fail every
// contract check. Retiring twice keeps the first timestamp.
func (s *IdentityService) Retire(ctx context.Context, identityID string) (*identity.Identity, error) {
	return s.update(ctx, identityID, func(i *identity.Identity) error {
		if i.RetiredAt == nil {
			at := s.now().UTC()
			i.RetiredAt = &at
		}
		return nil
	})
}

// UpdateContract replaces the identity's contract.
func (s *IdentityService) UpdateContract(ctx context.Context, identityID string, c identity.Contract) (*identity.Identity, error) {
	if c.MaxAutonomyLevel < 0 || c.MaxTokenBudget < 0 || c.MaxCostBudget < 0 {
		return nil, fmt.Errorf("contract limits must be >= 0: %w", domain.ErrValidation)
	}
	return s.update(ctx, identityID, func(i *identity.Identity) error {
		if i.Retired() {
			return fmt.Errorf("identity %s is retired: %w", i.ID, domain.ErrConflict)
		}
		c.CreatedAt = i.Contract.CreatedAt
		c.UpdatedAt = s.now().UTC()
		i.Contract = c
		return nil
	})
}
