package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	sgotel "github.com/multivitaminds/signof-sub014/internal/adapter/otel"
	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/approval"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/domain/budget"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
)

// Governor is the policy, approval and budget gate consulted before every
// governed action. Denials are decisions, never errors.
type Governor struct {
	policies  *PolicyService
	approvals *ApprovalService
	budgets   *BudgetService
	audit     *AuditService
	sensitive policy.SensitiveSet
	metrics   *sgotel.Metrics
}

// NewGovernor creates a Governor.
func NewGovernor(policies *PolicyService, approvals *ApprovalService, budgets *BudgetService, auditSvc *AuditService, sensitive policy.SensitiveSet) *Governor {
	return &Governor{
		policies:  policies,
		approvals: approvals,
		budgets:   budgets,
		audit:     auditSvc,
		sensitive: sensitive,
	}
}

// SetMetrics attaches metric instruments.
func (g *Governor) SetMetrics(m *sgotel.Metrics) { g.metrics = m }

// Sensitive reports whether action fails closed when lookups fail.
func (g *Governor) Sensitive(action string) bool { return g.sensitive.Contains(action) }

// CheckAction decides whether ac may proceed. Evaluation order: budget,
// approval, deny policies, default allow. When a lookup fails, sensitive
// actions deny. For other actions a failed budget lookup skips the budget
// stage, and a failed policy lookup falls back to the baseline policy set.
func (g *Governor) CheckAction(ctx context.Context, ac policy.ActionContext) (policy.Decision, error) {
	if ac.TenantID == "" || ac.ActorID == "" || ac.Action == "" {
		return policy.Decision{}, fmt.Errorf("tenant_id, actor_id and action are required: %w", domain.ErrValidation)
	}
	ctx, span := sgotel.StartGovernorSpan(ctx, ac.TenantID, ac.Action)
	defer span.End()

	d, outcome := g.evaluate(ctx, ac)
	span.SetAttributes(attribute.String("governor.outcome", outcome))
	if g.metrics != nil {
		g.metrics.GovernorDecisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("action", ac.Action),
		))
	}
	return d, nil
}

// Decision outcomes reported on spans and metrics.
const (
	outcomeAllowed          = "allowed"
	outcomeDenied           = "denied"
	outcomeBudgetDenied     = "budget_denied"
	outcomeApprovalRequired = "approval_required"
	outcomeFailClosed       = "fail_closed"
)

func (g *Governor) evaluate(ctx context.Context, ac policy.ActionContext) (policy.Decision, string) {
	if ac.EstimatedCost != nil {
		bd, err := g.checkBudget(ctx, ac)
		switch {
		case err != nil && g.sensitive.Contains(ac.Action):
			return g.failed(ctx, ac, err)
		case err != nil:
			// Budget stage skipped; tenant policies still apply.
			slog.Warn("governor budget lookup failed, skipping budget stage", "tenant_id", ac.TenantID, "action", ac.Action, "error", err)
		case !bd.Allowed:
			if g.metrics != nil {
				g.metrics.BudgetDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "governor")))
			}
			g.record(ctx, ac, audit.ActionBudgetDenied, map[string]any{"reason": bd.Reason})
			return policy.Deny(bd.Reason), outcomeBudgetDenied
		}
	}

	ps, err := g.policies.ForTenant(ctx, ac.TenantID)
	if err != nil {
		return g.failed(ctx, ac, err)
	}
	d, outcome, err := g.decide(ctx, ac, ps)
	if err != nil {
		return g.failed(ctx, ac, err)
	}
	return d, outcome
}

// checkBudget evaluates the estimated cost against the tenant's monthly
// cap and, when an agent is named, the agent's own budget.
func (g *Governor) checkBudget(ctx context.Context, ac policy.ActionContext) (budget.Decision, error) {
	requested := *ac.EstimatedCost
	d, err := g.budgets.CheckTenantBudget(ctx, ac.TenantID, requested)
	if err != nil || !d.Allowed || ac.AgentID == "" {
		return d, err
	}
	return g.budgets.CheckBudget(ctx, ac.AgentID, budget.Usage{CostUSD: requested})
}

// decide runs the approval and deny-policy stages over ps.
func (g *Governor) decide(ctx context.Context, ac policy.ActionContext, ps []policy.Policy) (policy.Decision, string, error) {
	if p, ok := policy.FirstApproval(ps, ac); ok {
		d, done, err := g.approvalGate(ctx, ac, p)
		if err != nil {
			return policy.Decision{}, "", err
		}
		if done {
			if d.RequiresApproval {
				return d, outcomeApprovalRequired, nil
			}
			return d, outcomeDenied, nil
		}
	}

	if p, ok := policy.FirstDeny(ps, ac); ok {
		d := policy.Deny(fmt.Sprintf("Denied by policy %q", p.Name))
		d.PolicyID = p.ID
		g.record(ctx, ac, audit.ActionDenied, map[string]any{"policy_id": p.ID, "reason": d.Reason})
		return d, outcomeDenied, nil
	}

	g.record(ctx, ac, audit.ActionAllowedPrefix+ac.Action, nil)
	return policy.Allow("No policy denies this action"), outcomeAllowed, nil
}

// approvalGate resolves the approval stage. An approval already granted
// for this action lets evaluation continue to the deny policies.
func (g *Governor) approvalGate(ctx context.Context, ac policy.ActionContext, p *policy.Policy) (policy.Decision, bool, error) {
	if ac.ApprovalID != "" {
		req, err := g.approvals.Get(ctx, ac.TenantID, ac.ApprovalID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Expired: open a fresh request below.
		case err != nil:
			return policy.Decision{}, false, fmt.Errorf("get approval %s: %w", ac.ApprovalID, err)
		case req.Action != ac.Action:
			slog.Warn("approval presented for another action", "approval_id", req.ID, "approved_action", req.Action, "action", ac.Action)
		case req.Status == approval.StatusApproved:
			return policy.Decision{}, false, nil
		case req.Status == approval.StatusDenied:
			d := policy.Deny(fmt.Sprintf("Approval request %s was denied", req.ID))
			d.PolicyID = p.ID
			return d, true, nil
		case req.Status == approval.StatusPending:
			return approvalRequired(req.ID, p), true, nil
		}
	}

	req, err := g.approvals.Create(ctx, approval.CreateRequest{
		TenantID:      ac.TenantID,
		RequesterID:   ac.ActorID,
		Action:        ac.Action,
		AgentType:     ac.AgentType,
		ResourceType:  ac.ResourceType,
		EstimatedCost: ac.EstimatedCost,
		PolicyID:      p.ID,
	})
	if err != nil {
		return policy.Decision{}, false, err
	}
	g.record(ctx, ac, audit.ActionApprovalRequested, map[string]any{"policy_id": p.ID, "approval_request_id": req.ID})
	return approvalRequired(req.ID, p), true, nil
}

func approvalRequired(requestID string, p *policy.Policy) policy.Decision {
	return policy.Decision{
		Reason:            fmt.Sprintf("Approval required by policy %q", p.Name),
		RequiresApproval:  true,
		ApprovalRequestID: requestID,
		PolicyID:          p.ID,
	}
}

// failed handles a lookup failure: sensitive actions deny, all others are
// decided by the fallback policies and allowed if even that fails.
func (g *Governor) failed(ctx context.Context, ac policy.ActionContext, cause error) (policy.Decision, string) {
	slog.Warn("governor lookup failed", "tenant_id", ac.TenantID, "action", ac.Action, "error", cause)

	if g.sensitive.Contains(ac.Action) {
		g.record(ctx, ac, audit.ActionFailClosed, map[string]any{"error": cause.Error()})
		return policy.Deny(fmt.Sprintf("Governance check unavailable for sensitive action %s", ac.Action)), outcomeFailClosed
	}

	d, outcome, err := g.decide(ctx, ac, g.policies.Fallback())
	if err != nil {
		slog.Warn("governor fallback failed, allowing", "tenant_id", ac.TenantID, "action", ac.Action, "error", err)
		return policy.Allow("Governance check unavailable; low-risk action allowed"), outcomeAllowed
	}
	return d, outcome
}

func (g *Governor) record(ctx context.Context, ac policy.ActionContext, action string, details map[string]any) {
	if details == nil {
		details = make(map[string]any, 3)
	}
	details["action"] = ac.Action
	if ac.AgentType != "" {
		details["agent_type"] = ac.AgentType
	}
	if ac.EstimatedCost != nil {
		details["estimated_cost"] = *ac.EstimatedCost
	}
	g.audit.Record(ctx, audit.Entry{
		TenantID:     ac.TenantID,
		Actor:        ac.ActorID,
		Action:       action,
		ResourceType: ac.ResourceType,
		ResourceID:   ac.ResourceID,
		Details:      details,
	})
}
