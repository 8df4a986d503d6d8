package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	sgotel "github.com/multivitaminds/signof-sub014/internal/adapter/otel"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
)

// BreakerService owns the circuit breaker registry and persists breaker
// state on every transition so it survives restarts.
type BreakerService struct {
	registry *resilience.Registry
	store    database.BreakerStore
	queue    messagequeue.Queue
	metrics  *sgotel.Metrics
}

// NewBreakerService creates the registry. store and queue may be nil.
func NewBreakerService(cfg config.Breaker, store database.BreakerStore, queue messagequeue.Queue, opts ...resilience.Option) *BreakerService {
	s := &BreakerService{store: store, queue: queue}
	opts = append(opts, resilience.WithTransitionHook(s.onTransition))
	s.registry = resilience.NewRegistry(resilience.Settings{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		HalfOpenMaxTests: cfg.HalfOpenMaxTests,
	}, opts...)
	return s
}

// SetMetrics attaches metric instruments.
func (s *BreakerService) SetMetrics(m *sgotel.Metrics) { s.metrics = m }

// Registry returns the underlying breaker registry.
func (s *BreakerService) Registry() *resilience.Registry { return s.registry }

// Restore loads persisted breaker state.
func (s *BreakerService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snaps, err := s.store.ListBreakers(ctx)
	if err != nil {
		return fmt.Errorf("list breakers: %w", err)
	}
	s.registry.Restore(snaps)
	slog.Info("circuit breakers restored", "count", len(snaps))
	return nil
}

// Flush persists every known breaker, including counters that have not
// caused a transition yet.
func (s *BreakerService) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	for _, snap := range s.registry.Snapshots() {
		if err := s.store.SaveBreaker(ctx, snap); err != nil {
			return fmt.Errorf("save breaker %s: %w", snap.ConnectorID, err)
		}
	}
	return nil
}

// Check reports whether a call to the connector may proceed.
func (s *BreakerService) Check(connectorID string) bool { return s.registry.Check(connectorID) }

// RecordSuccess reports a successful connector call.
func (s *BreakerService) RecordSuccess(connectorID string) { s.registry.RecordSuccess(connectorID) }

// RecordFailure reports a failed connector call.
func (s *BreakerService) RecordFailure(connectorID string) { s.registry.RecordFailure(connectorID) }

// Status returns the breaker snapshot for connectorID.
func (s *BreakerService) Status(connectorID string) resilience.Snapshot {
	return s.registry.Status(connectorID)
}

// List returns every known breaker.
func (s *BreakerService) List() []resilience.Snapshot { return s.registry.Snapshots() }

// Reset force-closes the breaker for connectorID.
func (s *BreakerService) Reset(connectorID string) resilience.Snapshot {
	slog.Info("circuit breaker reset", "connector_id", connectorID)
	return s.registry.Reset(connectorID)
}

func (s *BreakerService) onTransition(snap resilience.Snapshot) {
	slog.Info("circuit breaker transition", "connector_id", snap.ConnectorID, "state", snap.State, "failures", snap.FailureCount)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.SaveBreaker(ctx, snap); err != nil {
			slog.Warn("persist breaker", "connector_id", snap.ConnectorID, "error", err)
		}
	}
	publishEvent(ctx, s.queue, messagequeue.SubjectBreakerTransition, snap)
	if s.metrics != nil {
		s.metrics.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("connector_id", snap.ConnectorID),
			attribute.String("state", string(snap.State)),
		))
	}
}
