// Package audit defines append-only audit log entries.
package audit

import "time"

// Entry is one append-only audit record.
type Entry struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Governor audit actions.
const (
	ActionBudgetDenied      = "governor.budget_denied"
	ActionApprovalRequested = "governor.approval_requested"
	ActionDenied            = "governor.denied"
	ActionAllowedPrefix     = "governor.allowed:"
	ActionFailClosed        = "governor.fail_closed"
	ActionApprovalResolved  = "approval.resolved"
	ActionContractViolation = "identity.contract_violation"
)
