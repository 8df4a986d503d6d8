package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/tenant"
	"github.com/multivitaminds/signof-sub014/internal/port/cache"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
)

// TenantService manages tenants and their subscription plan.
type TenantService struct {
	store  database.TenantStore
	cached *readThrough[*tenant.Tenant]
	now    func() time.Time
}

// NewTenantService creates a new TenantService. c may be nil.
func NewTenantService(store database.TenantStore, c cache.Cache, ttl time.Duration) *TenantService {
	return &TenantService{
		store:  store,
		cached: newReadThrough[*tenant.Tenant](c, "tenant", ttl),
		now:    time.Now,
	}
}

var tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Upsert validates and stores a tenant.
func (s *TenantService) Upsert(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if !tenantIDRegex.MatchString(req.ID) {
		return nil, fmt.Errorf("invalid tenant id %q: %w", req.ID, domain.ErrValidation)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("tenant name is required: %w", domain.ErrValidation)
	}
	if req.Plan == "" {
		req.Plan = tenant.PlanFree
	}
	if !req.Plan.Valid() {
		return nil, fmt.Errorf("unknown plan %q: %w", req.Plan, domain.ErrValidation)
	}

	now := s.now().UTC()
	t := &tenant.Tenant{ID: req.ID, Name: req.Name, Plan: req.Plan, CreatedAt: now, UpdatedAt: now}
	if cur, err := s.store.GetTenant(ctx, req.ID); err == nil {
		t.CreatedAt = cur.CreatedAt
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := s.store.UpsertTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("upsert tenant %s: %w", req.ID, err)
	}
	s.cached.invalidate(ctx, req.ID)
	return t, nil
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// Plan returns the tenant's plan through the cache. Unknown tenants and
// lookup failures are on the free plan.
func (s *TenantService) Plan(ctx context.Context, id string) tenant.Plan {
	t, err := s.cached.get(ctx, id, func(ctx context.Context) (*tenant.Tenant, error) {
		t, err := s.store.GetTenant(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return t, err
	})
	if err != nil || t == nil || !t.Plan.Valid() {
		return tenant.PlanFree
	}
	return t.Plan
}
