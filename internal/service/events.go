package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
)

// publishEvent sends payload as JSON on subject. Best effort: a nil queue
// or a failed publish is logged and ignored.
func publishEvent(ctx context.Context, q messagequeue.Queue, subject string, payload any) {
	if q == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("marshal event", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(context.WithoutCancel(ctx), subject, data); err != nil {
		slog.Warn("publish event", "subject", subject, "error", err)
	}
}
