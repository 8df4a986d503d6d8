// Package identity defines agent identities, their cognitive contracts and
// the reputation law derived from lifecycle counters.
package identity

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Contract is the capability allowlist and budget ceiling bound to one identity.
// Empty allowlists are unrestricted; zero ceilings are unset.
type Contract struct {
	AllowedTools      []string  `json:"allowed_tools"`
	AllowedConnectors []string  `json:"allowed_connectors"`
	MaxAutonomyLevel  int       `json:"max_autonomy_level"`
	MaxTokenBudget    int64     `json:"max_token_budget"`
	MaxCostBudget     float64   `json:"max_cost_budget"`
	Restrictions      string    `json:"restrictions,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Identity is the durable record of one agent instantiation. Never deleted,
// only retired.
type Identity struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	AgentType          string     `json:"agent_type"`
	DisplayName        string     `json:"display_name"`
	Deployments        int64      `json:"deployments"`
	Cycles             int64      `json:"cycles"`
	ActionsExecuted    int64      `json:"actions_executed"`
	Errors             int64      `json:"errors"`
	Repairs            int64      `json:"repairs"`
	ContractViolations int64      `json:"contract_violations"`
	SuccessRate        float64    `json:"success_rate"`
	ReputationScore    float64    `json:"reputation_score"`
	Contract           Contract   `json:"contract"`
	RetiredAt          *time.Time `json:"retired_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// InitialReputation is the score of an identity that has no recorded history.
const InitialReputation = 50

// New builds a fresh identity. The reputation starts at InitialReputation
// and is only recomputed once counters are recorded.
func New(id string, req CreateRequest, now time.Time) Identity {
	c := req.Contract
	c.CreatedAt, c.UpdatedAt = now, now
	return Identity{
		ID:              id,
		TenantID:        req.TenantID,
		AgentType:       req.AgentType,
		DisplayName:     req.DisplayName,
		SuccessRate:     1,
		ReputationScore: InitialReputation,
		Contract:        c,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SuccessRate is (actions - errors) / actions, or 1 with no actions.
func SuccessRate(actions, errors int64) float64 {
	if actions <= 0 {
		return 1
	}
	return math.Max(0, float64(actions-errors)/float64(actions))
}

// ReputationScore is clamp(0, 100, rate*80 + min(cycles/100, 20) - min(violations*5, 50)).
func ReputationScore(successRate float64, cycles, violations int64) float64 {
	return score(successRate*80, cycles, violations)
}

func score(reliability float64, cycles, violations int64) float64 {
	activity := math.Min(float64(cycles)/100, 20)
	penalty := math.Min(float64(violations)*5, 50)
	return math.Max(0, math.Min(100, reliability+activity-penalty))
}

// Recompute refreshes the derived success rate and reputation. Until an
// action is recorded the reliability term stays at InitialReputation, so
// violations only ever lower the score of a fresh identity.
func (i *Identity) Recompute() {
	i.SuccessRate = SuccessRate(i.ActionsExecuted, i.Errors)
	if i.ActionsExecuted == 0 {
		i.ReputationScore = score(InitialReputation, i.Cycles, i.ContractViolations)
		return
	}
	i.ReputationScore = ReputationScore(i.SuccessRate, i.Cycles, i.ContractViolations)
}

// Retired reports whether the identity has been retired.
func (i *Identity) Retired() bool { return i.RetiredAt != nil }

// CapabilityClass is the kind of capability an action exercises.
type CapabilityClass string

const (
	ClassTool      CapabilityClass = "tool"
	ClassConnector CapabilityClass = "connector"
)

// ViolationType classifies a contract denial.
type ViolationType string

const (
	ViolationToolDenied       ViolationType = "tool_denied"
	ViolationConnectorDenied  ViolationType = "connector_denied"
	ViolationAutonomyExceeded ViolationType = "autonomy_exceeded"
	ViolationBudgetExceeded   ViolationType = "budget_exceeded"
	ViolationRetired          ViolationType = "identity_retired"
)

// ContractAction is the action presented to CheckContract. Action is the
// governed action name, used when the identity itself cannot be loaded.
type ContractAction struct {
	Class         CapabilityClass `json:"class"`
	Name          string          `json:"name"`
	Action        string          `json:"action,omitempty"`
	AutonomyLevel int             `json:"autonomy_level,omitempty"`
	EstimatedCost float64         `json:"estimated_cost,omitempty"`
}

// ContractResult is the verdict of a contract check.
type ContractResult struct {
	Allowed       bool          `json:"allowed"`
	Reason        string        `json:"reason"`
	ViolationType ViolationType `json:"violation_type,omitempty"`
}

// Check evaluates a against the identity's contract.
func (i *Identity) Check(a ContractAction) ContractResult {
	if i.Retired() {
		return ContractResult{Reason: fmt.Sprintf("identity %s is retired", i.ID), ViolationType: ViolationRetired}
	}
	c := i.Contract
	switch a.Class {
	case ClassTool:
		if len(c.AllowedTools) > 0 && !slices.Contains(c.AllowedTools, a.Name) {
			return ContractResult{Reason: fmt.Sprintf("tool %q is not in the contract allowlist", a.Name), ViolationType: ViolationToolDenied}
		}
	case ClassConnector:
		if len(c.AllowedConnectors) > 0 && !slices.Contains(c.AllowedConnectors, a.Name) {
			return ContractResult{Reason: fmt.Sprintf("connector %q is not in the contract allowlist", a.Name), ViolationType: ViolationConnectorDenied}
		}
	}
	if c.MaxAutonomyLevel > 0 && a.AutonomyLevel > c.MaxAutonomyLevel {
		return ContractResult{Reason: fmt.Sprintf("autonomy level %d exceeds contract maximum %d", a.AutonomyLevel, c.MaxAutonomyLevel), ViolationType: ViolationAutonomyExceeded}
	}
	if c.MaxCostBudget > 0 && a.EstimatedCost > c.MaxCostBudget {
		return ContractResult{Reason: fmt.Sprintf("estimated cost %.4f exceeds contract budget %.4f", a.EstimatedCost, c.MaxCostBudget), ViolationType: ViolationBudgetExceeded}
	}
	return ContractResult{Allowed: true, Reason: "permitted by contract"}
}

// CreateRequest holds the fields needed to register an identity.
type CreateRequest struct {
	TenantID    string   `json:"tenant_id"`
	AgentType   string   `json:"agent_type"`
	DisplayName string   `json:"display_name"`
	Contract    Contract `json:"contract"`
}
