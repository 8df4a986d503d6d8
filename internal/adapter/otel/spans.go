package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "signof-governor"

// AttrTenantID tags spans with the tenant they ran for.
const AttrTenantID = "tenant.id"

// StartKernelSpan starts a span for one processMessage call.
func StartKernelSpan(ctx context.Context, tenantID, agentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "kernel.process_message",
		trace.WithAttributes(
			attribute.String(AttrTenantID, tenantID),
			attribute.String("agent.type", agentType),
		),
	)
}

// StartModelSpan starts a span for a language-model call.
func StartModelSpan(ctx context.Context, runID, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "kernel.model_call",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a run.
func StartToolCallSpan(ctx context.Context, runID, tool, connectorID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "kernel.tool_call",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("toolcall.tool", tool),
			attribute.String("toolcall.connector", connectorID),
		),
	)
}

// StartGovernorSpan starts a span for one governor check.
func StartGovernorSpan(ctx context.Context, tenantID, action string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "governor.check_action",
		trace.WithAttributes(
			attribute.String(AttrTenantID, tenantID),
			attribute.String("governor.action", action),
		),
	)
}
