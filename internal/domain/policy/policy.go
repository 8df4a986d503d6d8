// Package policy defines tenant-scoped governance rules and how they match
// a proposed action.
package policy

import (
	"slices"
	"sort"
	"time"
)

// Effect is what a matching policy does to an action.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Wildcard matches every action.
const Wildcard = "*"

// Conditions restrict when a policy applies. Nil bounds are unbounded.
type Conditions struct {
	MinCost *float64 `json:"min_cost,omitempty" yaml:"min_cost,omitempty"`
	MaxCost *float64 `json:"max_cost,omitempty" yaml:"max_cost,omitempty"`
}

// Policy is one governance rule.
type Policy struct {
	ID               string     `json:"id" yaml:"id"`
	TenantID         string     `json:"tenant_id" yaml:"-"`
	Name             string     `json:"name" yaml:"name"`
	Action           string     `json:"action" yaml:"action"`
	Effect           Effect     `json:"effect" yaml:"effect"`
	RequiresApproval bool       `json:"requires_approval" yaml:"requires_approval"`
	AgentTypes       []string   `json:"agent_types,omitempty" yaml:"agent_types,omitempty"`
	Conditions       Conditions `json:"conditions" yaml:"conditions"`
	Priority         int        `json:"priority" yaml:"priority"`
	Enabled          bool       `json:"enabled" yaml:"enabled"`
	CreatedAt        time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"-"`
}

// ActionContext describes one proposed action submitted to the governor.
type ActionContext struct {
	TenantID      string         `json:"tenant_id"`
	ActorID       string         `json:"actor_id"`
	AgentID       string         `json:"agent_id,omitempty"`
	AgentType     string         `json:"agent_type,omitempty"`
	Action        string         `json:"action"`
	ResourceType  string         `json:"resource_type,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	EstimatedCost *float64       `json:"estimated_cost,omitempty"`
	ApprovalID    string         `json:"approval_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// MatchesAction reports whether the policy targets action.
func (p *Policy) MatchesAction(action string) bool {
	return p.Action == Wildcard || p.Action == action
}

// MatchesAgentType reports whether the policy applies to agentType.
// An empty restriction list applies to every agent type.
func (p *Policy) MatchesAgentType(agentType string) bool {
	return len(p.AgentTypes) == 0 || slices.Contains(p.AgentTypes, agentType)
}

// MatchesCost reports whether cost satisfies the cost-range conditions.
// A bounded condition is unmet when no cost estimate is supplied.
func (c Conditions) MatchesCost(cost *float64) bool {
	if c.MinCost == nil && c.MaxCost == nil {
		return true
	}
	if cost == nil {
		return false
	}
	if c.MinCost != nil && *cost < *c.MinCost {
		return false
	}
	if c.MaxCost != nil && *cost > *c.MaxCost {
		return false
	}
	return true
}

// RequiresApprovalFor reports whether the policy demands approval for ac.
// Cost conditions and effect are ignored.
func (p *Policy) RequiresApprovalFor(ac ActionContext) bool {
	return p.Enabled && p.RequiresApproval && p.MatchesAction(ac.Action) && p.MatchesAgentType(ac.AgentType)
}

// DeniesAction reports whether the policy denies ac.
func (p *Policy) DeniesAction(ac ActionContext) bool {
	return p.Enabled && p.Effect == EffectDeny &&
		p.MatchesAction(ac.Action) &&
		p.MatchesAgentType(ac.AgentType) &&
		p.Conditions.MatchesCost(ac.EstimatedCost)
}

// ByPriority returns a copy of ps sorted by descending priority.
// Ties keep their input order.
func ByPriority(ps []Policy) []Policy {
	out := slices.Clone(ps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// FirstApproval returns the first policy demanding approval for ac.
func FirstApproval(ps []Policy, ac ActionContext) (*Policy, bool) {
	for i := range ps {
		if ps[i].RequiresApprovalFor(ac) {
			return &ps[i], true
		}
	}
	return nil, false
}

// FirstDeny returns the highest-priority policy denying ac.
func FirstDeny(ps []Policy, ac ActionContext) (*Policy, bool) {
	sorted := ByPriority(ps)
	for i := range sorted {
		if sorted[i].DeniesAction(ac) {
			return &sorted[i], true
		}
	}
	return nil, false
}

// Decision is the governor's verdict on one action. Denials are values,
// not errors.
type Decision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason"`
	RequiresApproval  bool   `json:"requires_approval,omitempty"`
	ApprovalRequestID string `json:"approval_request_id,omitempty"`
	PolicyID          string `json:"policy_id,omitempty"`
}

// Allow returns an allowing decision.
func Allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

// Deny returns a denying decision.
func Deny(reason string) Decision { return Decision{Reason: reason} }
