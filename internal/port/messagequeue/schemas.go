package messagequeue

// RunCompletedPayload is the schema for runs.completed messages.
type RunCompletedPayload struct {
	RunID     string  `json:"run_id"`
	TenantID  string  `json:"tenant_id"`
	Model     string  `json:"model"`
	TokensIn  int64   `json:"tokens_in"`
	TokensOut int64   `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
}

// RunFailedPayload is the schema for runs.failed messages.
type RunFailedPayload struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// IdentityViolationPayload is the schema for identities.violation messages.
type IdentityViolationPayload struct {
	IdentityID string         `json:"identity_id"`
	TenantID   string         `json:"tenant_id"`
	Details    map[string]any `json:"details,omitempty"`
}

// ApprovalResolvePayload is the schema for inbound approvals.resolve messages
// sent by external reviewer channels.
type ApprovalResolvePayload struct {
	TenantID   string `json:"tenant_id"`
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"`
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note,omitempty"`
}
