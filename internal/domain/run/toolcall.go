package run

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolCallStatus is the outcome of a single tool call.
type ToolCallStatus string

const (
	ToolCallSucceeded ToolCallStatus = "succeeded"
	ToolCallFailed    ToolCallStatus = "failed"
	ToolCallDenied    ToolCallStatus = "denied"
)

// ToolCall is an append-only record of one tool invocation within a run.
type ToolCall struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	TenantID    string          `json:"tenant_id"`
	Name        string          `json:"name"`
	ConnectorID string          `json:"connector_id,omitempty"`
	Input       json.RawMessage `json:"input"`
	Output      string          `json:"output"`
	Status      ToolCallStatus  `json:"status"`
	DurationMs  int64           `json:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToolError carries enough context to reconstruct a failed tool call.
type ToolError struct {
	RunID       string
	Tool        string
	ConnectorID string
	Action      string
	Err         error
}

func (e *ToolError) Error() string {
	if e.ConnectorID != "" {
		return fmt.Sprintf("run %s: tool %s via %s (%s): %v", e.RunID, e.Tool, e.ConnectorID, e.Action, e.Err)
	}
	return fmt.Sprintf("run %s: tool %s (%s): %v", e.RunID, e.Tool, e.Action, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
