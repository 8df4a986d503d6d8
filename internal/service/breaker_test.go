package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/memstore"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
	"github.com/multivitaminds/signof-sub014/internal/resilience"
	"github.com/multivitaminds/signof-sub014/internal/service"
)

func breakerConfig() config.Breaker {
	return config.Breaker{FailureThreshold: 2, ResetTimeout: time.Minute, HalfOpenMaxTests: 1}
}

func TestBreakerServicePersistsTransitions(t *testing.T) {
	store := memstore.New()
	queue := &fakeQueue{}
	svc := service.NewBreakerService(breakerConfig(), store, queue)

	svc.RecordFailure("github")
	if !svc.Check("github") {
		t.Fatal("breaker should stay closed below threshold")
	}
	svc.RecordFailure("github")
	if svc.Check("github") {
		t.Fatal("breaker should open at threshold")
	}
	if svc.Status("github").State != resilience.StateOpen {
		t.Fatalf("expected open, got %s", svc.Status("github").State)
	}

	snaps, err := store.ListBreakers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].State != resilience.StateOpen {
		t.Fatalf("expected persisted open breaker, got %+v", snaps)
	}
	if queue.count(messagequeue.SubjectBreakerTransition) != 1 {
		t.Fatal("expected one breakers.transition event")
	}
}

func TestBreakerServiceRestore(t *testing.T) {
	store := memstore.New()
	first := service.NewBreakerService(breakerConfig(), store, nil)
	first.RecordFailure("slack")
	first.RecordFailure("slack")

	second := service.NewBreakerService(breakerConfig(), store, nil)
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if second.Check("slack") {
		t.Fatal("restored breaker should still reject calls")
	}
}

func TestBreakerServiceFlushAndReset(t *testing.T) {
	store := memstore.New()
	svc := service.NewBreakerService(breakerConfig(), store, nil)
	svc.RecordFailure("jira")

	if err := svc.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	snaps, _ := store.ListBreakers(context.Background())
	if len(snaps) != 1 || snaps[0].FailureCount != 1 {
		t.Fatalf("expected flushed failure count, got %+v", snaps)
	}

	svc.RecordFailure("jira")
	if snap := svc.Reset("jira"); snap.State != resilience.StateClosed || snap.FailureCount != 0 {
		t.Fatalf("expected closed breaker after reset, got %+v", snap)
	}
	if len(svc.List()) != 1 {
		t.Fatalf("expected one breaker, got %d", len(svc.List()))
	}
}

func TestBreakerServiceWithoutStore(t *testing.T) {
	svc := service.NewBreakerService(breakerConfig(), nil, nil)
	svc.RecordFailure("x")
	svc.RecordFailure("x")
	if err := svc.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
}
