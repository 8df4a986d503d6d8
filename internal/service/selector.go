package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/agent"
	"github.com/multivitaminds/signof-sub014/internal/domain/tenant"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// ProviderAvailability reports whether a model candidate can serve calls.
type ProviderAvailability interface {
	IsAvailable(ctx context.Context, provider, model string) bool
}

// StaticAvailability admits candidates whose provider is configured.
type StaticAvailability map[string]struct{}

// NewStaticAvailability builds the set of configured providers.
func NewStaticAvailability(providers ...string) StaticAvailability {
	s := make(StaticAvailability, len(providers))
	for _, p := range providers {
		s[p] = struct{}{}
	}
	return s
}

// IsAvailable implements ProviderAvailability.
func (s StaticAvailability) IsAvailable(_ context.Context, provider, _ string) bool {
	_, ok := s[provider]
	return ok
}

// LLMBreakerID is the breaker guarding calls to one model provider.
func LLMBreakerID(provider string) string { return "llm:" + provider }

// BreakerAvailability rejects providers whose breaker refuses calls.
type BreakerAvailability struct {
	Breakers *resilience.Registry
}

// IsAvailable implements ProviderAvailability without changing breaker state.
func (b BreakerAvailability) IsAvailable(_ context.Context, provider, _ string) bool {
	return b.Breakers.Available(LLMBreakerID(provider))
}

// AllAvailable admits a candidate only when every check does.
type AllAvailable []ProviderAvailability

// IsAvailable implements ProviderAvailability.
func (a AllAvailable) IsAvailable(ctx context.Context, provider, model string) bool {
	for _, p := range a {
		if !p.IsAvailable(ctx, provider, model) {
			return false
		}
	}
	return true
}

// Selection is the model chosen for a run.
type Selection struct {
	Model    string     `json:"model"`
	Provider string     `json:"provider"`
	Tier     agent.Tier `json:"tier"`
}

// Selector picks a model by agent type and tenant plan. The tier is the
// lesser of the agent's preferred tier and the plan's cap; when no
// candidate in that tier is available, lower tiers are tried in turn.
type Selector struct {
	tiers   map[agent.Tier][]config.ModelRef
	caps    map[tenant.Plan]agent.Tier
	tenants *TenantService
	avail   ProviderAvailability
}

// NewSelector creates a Selector from configured tier tables.
func NewSelector(cfg config.Selector, tenants *TenantService, avail ProviderAvailability) *Selector {
	s := &Selector{
		tiers:   make(map[agent.Tier][]config.ModelRef, len(cfg.Tiers)),
		caps:    make(map[tenant.Plan]agent.Tier, len(cfg.PlanCaps)),
		tenants: tenants,
		avail:   avail,
	}
	for t, refs := range cfg.Tiers {
		s.tiers[agent.Tier(t)] = slices.Clone(refs)
	}
	for p, t := range cfg.PlanCaps {
		s.caps[tenant.Plan(p)] = agent.Tier(t)
	}
	return s
}

// Select returns the first available candidate for the agent type.
func (s *Selector) Select(ctx context.Context, tenantID string, t agent.Type) (Selection, error) {
	profile, ok := agent.Lookup(t)
	if !ok {
		profile, _ = agent.Lookup(agent.TypeAssistant)
	}
	limit, ok := s.caps[s.tenants.Plan(ctx, tenantID)]
	if !ok {
		limit = agent.TierFast
	}
	want := agent.Min(profile.PreferredTier, limit)

	for rank := want.Rank(); rank >= 0; rank-- {
		tier := agent.Tiers[rank]
		for _, ref := range s.tiers[tier] {
			if s.avail == nil || s.avail.IsAvailable(ctx, ref.Provider, ref.Model) {
				return Selection{Model: ref.Model, Provider: ref.Provider, Tier: tier}, nil
			}
		}
	}
	return Selection{}, fmt.Errorf("no model provider available for tier %s: %w", want, domain.ErrNoProvider)
}
