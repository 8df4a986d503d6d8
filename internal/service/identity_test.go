package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/multivitaminds/signof-sub014/internal/domain"
	"github.com/multivitaminds/signof-sub014/internal/domain/audit"
	"github.com/multivitaminds/signof-sub014/internal/domain/identity"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
)

func newIdentity(t *testing.T, env *govEnv, c identity.Contract) *identity.Identity {
	t.Helper()
	id, err := env.identities.Create(context.Background(), identity.CreateRequest{TenantID: "t1", AgentType: "coder", Contract: c})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestIdentityCreateDefaults(t *testing.T) {
	env := newGovEnv(t)
	id := newIdentity(t, env, identity.Contract{})
	if id.ReputationScore != identity.InitialReputation || id.SuccessRate != 1 {
		t.Fatalf("expected fresh reputation 50 and rate 1, got %v %v", id.ReputationScore, id.SuccessRate)
	}
	if id.DisplayName != "coder" {
		t.Fatalf("expected display name to default to agent type, got %q", id.DisplayName)
	}

	_, err := env.identities.Create(context.Background(), identity.CreateRequest{TenantID: "t1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestIdentityCountersDriveReputation(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	id := newIdentity(t, env, identity.Contract{})

	for range 4 {
		if _, err := env.identities.RecordAction(ctx, id.ID); err != nil {
			t.Fatal(err)
		}
	}
	got, err := env.identities.RecordError(ctx, id.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SuccessRate != 0.75 {
		t.Fatalf("expected success rate 0.75, got %v", got.SuccessRate)
	}
	if got.ReputationScore != 60 {
		t.Fatalf("expected reputation 60, got %v", got.ReputationScore)
	}

	if _, err := env.identities.RecordDeployment(ctx, id.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.identities.RecordRepair(ctx, id.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = env.identities.RecordCycle(ctx, id.ID)
	if got.Deployments != 1 || got.Repairs != 1 || got.Cycles != 1 {
		t.Fatalf("unexpected counters %+v", got)
	}
}

func TestIdentityViolationsLowerReputation(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	id := newIdentity(t, env, identity.Contract{AllowedTools: []string{"search"}})
	action := identity.ContractAction{Class: identity.ClassTool, Name: "shell"}

	res := env.identities.CheckContract(ctx, id.ID, action)
	if res.Allowed || res.ViolationType != identity.ViolationToolDenied {
		t.Fatalf("expected tool denial, got %+v", res)
	}

	prev := id.ReputationScore
	if prev != identity.InitialReputation {
		t.Fatalf("fresh identity should start at %v, got %v", float64(identity.InitialReputation), prev)
	}
	for i := range 3 {
		got, err := env.identities.RecordContractViolation(ctx, id.ID, action, res)
		if err != nil {
			t.Fatal(err)
		}
		if got.ReputationScore >= prev {
			t.Fatalf("violation %d: reputation %v did not drop below %v", i+1, got.ReputationScore, prev)
		}
		prev = got.ReputationScore
	}
	if got := countOf(env.auditActions(t, "t1"), audit.ActionContractViolation); got != 3 {
		t.Fatalf("expected 3 violation audits, got %d", got)
	}
	if env.queue.count(messagequeue.SubjectIdentityViolation) != 3 {
		t.Fatal("expected identities.violation events")
	}
}

func TestIdentityCheckContractUnknown(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()

	res := env.identities.CheckContract(ctx, "ghost", identity.ContractAction{Class: identity.ClassTool, Name: "search", Action: "tool.search"})
	if !res.Allowed {
		t.Fatalf("unknown identity should allow non-sensitive action, got %+v", res)
	}
	res = env.identities.CheckContract(ctx, "ghost", identity.ContractAction{Class: identity.ClassTool, Name: "purge", Action: "data.delete"})
	if res.Allowed {
		t.Fatal("unknown identity must deny sensitive action")
	}

	env.store.failIdentity = true
	id := newIdentity(t, env, identity.Contract{})
	res = env.identities.CheckContract(ctx, id.ID, identity.ContractAction{Class: identity.ClassTool, Name: "export", Action: "data.export"})
	if res.Allowed {
		t.Fatal("lookup failure must deny sensitive action")
	}
}

func TestIdentityRetire(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	id := newIdentity(t, env, identity.Contract{})

	first, err := env.identities.Retire(ctx, id.ID)
	if err != nil || first.RetiredAt == nil {
		t.Fatalf("Retire: %+v %v", first, err)
	}
	second, _ := env.identities.Retire(ctx, id.ID)
	if !second.RetiredAt.Equal(*first.RetiredAt) {
		t.Fatal("retiring twice must keep the first timestamp")
	}

	res := env.identities.CheckContract(ctx, id.ID, identity.ContractAction{Class: identity.ClassTool, Name: "search"})
	if res.Allowed || res.ViolationType != identity.ViolationRetired {
		t.Fatalf("expected retired denial, got %+v", res)
	}
	if _, err := env.identities.UpdateContract(ctx, id.ID, identity.Contract{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestIdentityUpdateContract(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	id := newIdentity(t, env, identity.Contract{})

	if _, err := env.identities.UpdateContract(ctx, id.ID, identity.Contract{MaxCostBudget: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	updated, err := env.identities.UpdateContract(ctx, id.ID, identity.Contract{AllowedConnectors: []string{"github"}, MaxAutonomyLevel: 2})
	if err != nil {
		t.Fatalf("UpdateContract: %v", err)
	}
	if !updated.Contract.CreatedAt.Equal(id.Contract.CreatedAt) {
		t.Fatal("contract created_at must be preserved")
	}

	tests := []struct {
		name    string
		action  identity.ContractAction
		allowed bool
	}{
		{"allowed connector", identity.ContractAction{Class: identity.ClassConnector, Name: "github", AutonomyLevel: 1}, true},
		{"foreign connector", identity.ContractAction{Class: identity.ClassConnector, Name: "slack"}, false},
		{"autonomy exceeded", identity.ContractAction{Class: identity.ClassTool, Name: "shell", AutonomyLevel: 3}, false},
		{"unrestricted tools", identity.ContractAction{Class: identity.ClassTool, Name: "shell"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.identities.CheckContract(ctx, id.ID, tt.action)
			if res.Allowed != tt.allowed {
				t.Fatalf("allowed = %v, want %v (%s)", res.Allowed, tt.allowed, res.Reason)
			}
		})
	}
}

func TestIdentityListScopedToTenant(t *testing.T) {
	env := newGovEnv(t)
	ctx := context.Background()
	newIdentity(t, env, identity.Contract{})
	if _, err := env.identities.Create(ctx, identity.CreateRequest{TenantID: "t2", AgentType: "writer"}); err != nil {
		t.Fatal(err)
	}
	ids, err := env.identities.List(ctx, "t1")
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected one identity for t1, got %d %v", len(ids), err)
	}
}
