// Package approval defines the human-in-the-loop approval request lifecycle.
package approval

import (
	"errors"
	"time"
)

// Status is the approval request state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	// StatusExpired is observational: reported when no record exists.
	StatusExpired Status = "expired"
)

// Terminal reports whether s is a resolved state.
func (s Status) Terminal() bool { return s != StatusPending }

// Request is one approval request. Only pending requests may be resolved.
type Request struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	RequesterID   string     `json:"requester_id"`
	Action        string     `json:"action"`
	AgentType     string     `json:"agent_type,omitempty"`
	ResourceType  string     `json:"resource_type,omitempty"`
	EstimatedCost *float64   `json:"estimated_cost,omitempty"`
	PolicyID      string     `json:"policy_id,omitempty"`
	Status        Status     `json:"status"`
	ReviewerID    string     `json:"reviewer_id,omitempty"`
	ReviewerNote  string     `json:"reviewer_note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// CreateRequest holds the fields needed to open an approval request.
type CreateRequest struct {
	TenantID      string   `json:"tenant_id"`
	RequesterID   string   `json:"requester_id"`
	Action        string   `json:"action"`
	AgentType     string   `json:"agent_type,omitempty"`
	ResourceType  string   `json:"resource_type,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
	PolicyID      string   `json:"policy_id,omitempty"`
}

// Validate checks the required fields.
func (r *CreateRequest) Validate() error {
	if r.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if r.RequesterID == "" {
		return errors.New("requester_id is required")
	}
	if r.Action == "" {
		return errors.New("action is required")
	}
	return nil
}

// Resolution is a reviewer's verdict on a pending request.
type Resolution struct {
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note,omitempty"`
}
