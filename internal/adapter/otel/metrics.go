package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "signof-governor"

// Metrics holds the governance metric instruments.
type Metrics struct {
	RunsStarted        metric.Int64Counter
	RunsCompleted      metric.Int64Counter
	RunsFailed         metric.Int64Counter
	RunCost            metric.Float64Histogram
	ToolCalls          metric.Int64Counter
	GovernorDecisions  metric.Int64Counter
	BreakerTransitions metric.Int64Counter
	BudgetDenials      metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RunsStarted, err = meter.Int64Counter("signof.runs.started",
		metric.WithDescription("Number of kernel runs started")); err != nil {
		return nil, err
	}
	if m.RunsCompleted, err = meter.Int64Counter("signof.runs.completed",
		metric.WithDescription("Number of kernel runs completed")); err != nil {
		return nil, err
	}
	if m.RunsFailed, err = meter.Int64Counter("signof.runs.failed",
		metric.WithDescription("Number of kernel runs failed")); err != nil {
		return nil, err
	}
	if m.RunCost, err = meter.Float64Histogram("signof.run.cost_usd",
		metric.WithDescription("Run cost in USD")); err != nil {
		return nil, err
	}
	if m.ToolCalls, err = meter.Int64Counter("signof.toolcalls",
		metric.WithDescription("Number of tool calls by outcome")); err != nil {
		return nil, err
	}
	if m.GovernorDecisions, err = meter.Int64Counter("signof.governor.decisions",
		metric.WithDescription("Governor decisions by outcome")); err != nil {
		return nil, err
	}
	if m.BreakerTransitions, err = meter.Int64Counter("signof.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, err
	}
	if m.BudgetDenials, err = meter.Int64Counter("signof.budget.denials",
		metric.WithDescription("Budget checks that denied work")); err != nil {
		return nil, err
	}
	return m, nil
}
