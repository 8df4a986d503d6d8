// Package broadcast defines the port for pushing real-time events to
// connected clients.
package broadcast

import "context"

// Event types pushed to clients.
const (
	EventRunStarted  = "run.started"
	EventRunToken    = "run.token"
	EventRunFinished = "run.finished"
)

// Broadcaster sends typed events to connected clients. Delivery is best effort.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any)
}

// RunStartedEvent is the payload of EventRunStarted.
type RunStartedEvent struct {
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
	AgentType      string `json:"agent_type"`
	Model          string `json:"model"`
}

// RunTokenEvent is the payload of EventRunToken.
type RunTokenEvent struct {
	RunID string `json:"run_id"`
	Delta string `json:"delta"`
}

// RunFinishedEvent is the payload of EventRunFinished.
type RunFinishedEvent struct {
	RunID   string  `json:"run_id"`
	Status  string  `json:"status"`
	CostUSD float64 `json:"cost_usd,omitempty"`
	Error   string  `json:"error,omitempty"`
}
