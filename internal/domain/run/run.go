// Package run defines the AgentRun entity for one orchestrator invocation.
package run

import (
	"fmt"
	"time"
)

// Status represents the current state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one invocation of the kernel. Created at dispatch and finalized
// exactly once, on completion or failure.
type Run struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	UserID         string     `json:"user_id"`
	ConversationID string     `json:"conversation_id"`
	IdentityID     string     `json:"identity_id,omitempty"`
	AgentType      string     `json:"agent_type"`
	Model          string     `json:"model"`
	Provider       string     `json:"provider"`
	Status         Status     `json:"status"`
	Task           string     `json:"task"`
	TokensIn       int64      `json:"tokens_in"`
	TokensOut      int64      `json:"tokens_out"`
	CostUSD        float64    `json:"cost_usd"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Completion carries the final accounting of a successful run.
type Completion struct {
	TokensIn  int64
	TokensOut int64
	CostUSD   float64
}

// Error records which kernel stage failed for which run.
type Error struct {
	RunID string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("run %s: %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
