package tool

import (
	"context"
	"encoding/json"
	"time"

	"websearch/internal/domain"
)

// PublishToolEvent publishes a domain event on bus. A nil bus is a no-op.
// The session ID is taken from ctx.
func PublishToolEvent(ctx context.Context, bus domain.EventBus, eventType domain.EventType, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: domain.SessionIDFromContext(ctx),
		Payload:   raw,
	})
}
