package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/port/cache"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
)

// PolicyService manages tenant policies and serves the cached per-tenant
// policy set read by the governor.
type PolicyService struct {
	store    database.PolicyStore
	cached   *readThrough[[]policy.Policy]
	fallback []policy.Policy
	now      func() time.Time
}

// NewPolicyService creates a PolicyService. presets are evaluated, after the
// built-in baseline, whenever a tenant's own policies cannot be loaded.
// c may be nil.
func NewPolicyService(store database.PolicyStore, c cache.Cache, ttl time.Duration, presets []policy.Policy) *PolicyService {
	fallback := append(policy.Baseline(), presets...)
	return &PolicyService{
		store:    store,
		cached:   newReadThrough[[]policy.Policy](c, "policy:tenant", ttl),
		fallback: fallback,
		now:      time.Now,
	}
}

// ForTenant returns the tenant's policies through the cache.
func (s *PolicyService) ForTenant(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	return s.cached.get(ctx, tenantID, func(ctx context.Context) ([]policy.Policy, error) {
		return s.store.ListPolicies(ctx, tenantID)
	})
}

// Fallback returns the baseline and preset policies.
func (s *PolicyService) Fallback() []policy.Policy {
	out := make([]policy.Policy, len(s.fallback))
	copy(out, s.fallback)
	return out
}

// List returns the tenant's policies straight from the store.
func (s *PolicyService) List(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	return s.store.ListPolicies(ctx, tenantID)
}

// Get returns one policy.
func (s *PolicyService) Get(ctx context.Context, tenantID, id string) (*policy.Policy, error) {
	return s.store.GetPolicy(ctx, tenantID, id)
}

// Create validates and stores a new policy.
func (s *PolicyService) Create(ctx context.Context, tenantID string, p policy.Policy) (*policy.Policy, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	now := s.now().UTC()
	p.ID = uuid.NewString()
	p.TenantID = tenantID
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.store.CreatePolicy(ctx, &p); err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}
	s.cached.invalidate(ctx, tenantID)
	slog.Info("policy created", "tenant_id", tenantID, "policy_id", p.ID, "action", p.Action)
	return &p, nil
}

// Update replaces an existing policy.
func (s *PolicyService) Update(ctx context.Context, tenantID, id string, p policy.Policy) (*policy.Policy, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	cur, err := s.store.GetPolicy(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	p.ID, p.TenantID, p.CreatedAt = cur.ID, tenantID, cur.CreatedAt
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePolicy(ctx, &p); err != nil {
		return nil, fmt.Errorf("update policy %s: %w", id, err)
	}
	s.cached.invalidate(ctx, tenantID)
	return &p, nil
}

// Delete removes a policy.
func (s *PolicyService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.DeletePolicy(ctx, tenantID, id); err != nil {
		return err
	}
	s.cached.invalidate(ctx, tenantID)
	return nil
}
