package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/multivitaminds/signof-sub014/internal/port/broadcast"
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent marshals a typed event and sends it to the tenant's
// clients. Payloads carrying a run id are filtered by run.
func (h *Hub) BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	h.BroadcastToTenant(ctx, tenantID, runIDOf(payload), Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

func runIDOf(payload any) string {
	switch p := payload.(type) {
	case broadcast.RunStartedEvent:
		return p.RunID
	case broadcast.RunTokenEvent:
		return p.RunID
	case broadcast.RunFinishedEvent:
		return p.RunID
	}
	return ""
}
