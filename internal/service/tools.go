package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	sgotel "github.com/multivitaminds/signof-sub014/internal/adapter/otel"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/domain/policy"
	"github.com/multivitaminds/signof-sub014/internal/domain/run"
	"github.com/multivitaminds/signof-sub014/internal/port/connector"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// ToolInvocation is one model-requested tool call within a run.
type ToolInvocation struct {
	RunID      string
	TenantID   string
	ActorID    string
	AgentID    string
	IdentityID string
	AgentType  string
	Call       llm.ToolCall
}

// ToolExecutor runs tool calls through the identity contract, the
// governor and, for connector tools, the connector's circuit breaker.
// Failures and denials are recorded on the returned ToolCall, never
// returned as errors.
type ToolExecutor struct {
	tools      *connector.Registry
	governor   *Governor
	identities *IdentityService
	breakers   *resilience.Registry
	timeout    time.Duration
	metrics    *sgotel.Metrics
	now        func() time.Time
}

// NewToolExecutor creates a ToolExecutor. identities may be nil.
func NewToolExecutor(tools *connector.Registry, governor *Governor, identities *IdentityService, breakers *resilience.Registry, timeout time.Duration) *ToolExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ToolExecutor{
		tools:      tools,
		governor:   governor,
		identities: identities,
		breakers:   breakers,
		timeout:    timeout,
		now:        time.Now,
	}
}

// SetMetrics attaches metric instruments.
func (e *ToolExecutor) SetMetrics(m *sgotel.Metrics) { e.metrics = m }

// Defs returns the tool definitions offered to the model.
func (e *ToolExecutor) Defs() []llm.ToolDef { return e.tools.Defs() }

// Execute runs one tool call.
func (e *ToolExecutor) Execute(ctx context.Context, inv ToolInvocation) run.ToolCall {
	start := e.now()
	tc := run.ToolCall{
		ID:        uuid.NewString(),
		RunID:     inv.RunID,
		TenantID:  inv.TenantID,
		Name:      inv.Call.Name,
		Input:     inv.Call.Arguments,
		CreatedAt: start.UTC(),
	}

	tool, ok := e.tools.Lookup(inv.Call.Name)
	if !ok {
		return e.finish(ctx, tc, start, run.ToolCallFailed, fmt.Sprintf("unknown tool %q", inv.Call.Name))
	}
	tc.ConnectorID = tool.ConnectorID
	action := tool.GovernedAction()

	ctx, span := sgotel.StartToolCallSpan(ctx, inv.RunID, tool.Name, tool.ConnectorID)
	defer span.End()

	if reason, denied := e.checkContract(ctx, inv, tool, action); denied {
		return e.finish(ctx, tc, start, run.ToolCallDenied, reason)
	}

	d, err := e.governor.CheckAction(ctx, policy.ActionContext{
		TenantID:     inv.TenantID,
		ActorID:      inv.ActorID,
		AgentID:      inv.AgentID,
		AgentType:    inv.AgentType,
		Action:       action,
		ResourceType: "tool",
		ResourceID:   tool.Name,
	})
	if err != nil {
		return e.finish(ctx, tc, start, run.ToolCallDenied, err.Error())
	}
	if !d.Allowed {
		reason := d.Reason
		if d.RequiresApproval {
			reason = fmt.Sprintf("%s (approval_request_id=%s)", d.Reason, d.ApprovalRequestID)
		}
		return e.finish(ctx, tc, start, run.ToolCallDenied, reason)
	}

	if tool.ConnectorID != "" && !e.breakers.Check(tool.ConnectorID) {
		return e.finish(ctx, tc, start, run.ToolCallFailed, fmt.Sprintf("connector %s unavailable: %v", tool.ConnectorID, resilience.ErrCircuitOpen))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	out, err := e.tools.Invoke(callCtx, tool.Name, inv.Call.Arguments)
	cancel()

	e.recordOutcome(ctx, tool.ConnectorID, err)
	e.recordIdentity(ctx, inv.IdentityID, err)

	if err != nil {
		terr := &run.ToolError{RunID: inv.RunID, Tool: tool.Name, ConnectorID: tool.ConnectorID, Action: action, Err: err}
		slog.Warn("tool call failed", "run_id", inv.RunID, "tool", tool.Name, "connector_id", tool.ConnectorID, "error", err)
		span.RecordError(terr)
		return e.finish(ctx, tc, start, run.ToolCallFailed, terr.Error())
	}
	return e.finish(ctx, tc, start, run.ToolCallSucceeded, out)
}

// checkContract applies the identity contract to the tool and, for
// connector tools, the connector. Denials are recorded as violations.
func (e *ToolExecutor) checkContract(ctx context.Context, inv ToolInvocation, tool connector.Tool, action string) (string, bool) {
	if e.identities == nil || inv.IdentityID == "" {
		return "", false
	}
	checks := []identity.ContractAction{{Class: identity.ClassTool, Name: tool.Name, Action: action, AutonomyLevel: tool.AutonomyLevel}}
	if tool.ConnectorID != "" {
		checks = append(checks, identity.ContractAction{Class: identity.ClassConnector, Name: tool.ConnectorID, Action: action, AutonomyLevel: tool.AutonomyLevel})
	}
	for _, a := range checks {
		res := e.identities.CheckContract(ctx, inv.IdentityID, a)
		if res.Allowed {
			continue
		}
		if res.ViolationType != "" {
			if _, err := e.identities.RecordContractViolation(ctx, inv.IdentityID, a, res); err != nil {
				slog.Warn("record contract violation", "identity_id", inv.IdentityID, "error", err)
			}
		}
		return res.Reason, true
	}
	return "", false
}

// recordOutcome reports the call to the connector's breaker. Calls the
// caller abandoned are released without an outcome.
func (e *ToolExecutor) recordOutcome(ctx context.Context, connectorID string, err error) {
	if connectorID == "" {
		return
	}
	switch {
	case err == nil:
		e.breakers.RecordSuccess(connectorID)
	case errors.Is(err, context.DeadlineExceeded):
		e.breakers.RecordTimeout(connectorID)
	case ctx.Err() != nil:
		e.breakers.Release(connectorID)
	default:
		e.breakers.RecordFailure(connectorID)
	}
}

func (e *ToolExecutor) recordIdentity(ctx context.Context, identityID string, callErr error) {
	if e.identities == nil || identityID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if _, err := e.identities.RecordAction(ctx, identityID); err != nil {
		slog.Debug("record identity action", "identity_id", identityID, "error", err)
		return
	}
	if callErr != nil {
		if _, err := e.identities.RecordError(ctx, identityID); err != nil {
			slog.Debug("record identity error", "identity_id", identityID, "error", err)
		}
	}
}

func (e *ToolExecutor) finish(ctx context.Context, tc run.ToolCall, start time.Time, status run.ToolCallStatus, output string) run.ToolCall {
	tc.Status = status
	tc.Output = output
	tc.DurationMs = e.now().Sub(start).Milliseconds()
	if e.metrics != nil {
		e.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(status)),
			attribute.String("tool", tc.Name),
		))
	}
	return tc
}
