package port

import (
	"context"

	"github.com/garyjia/claim-review/internal/domain/event"
)

// Notifier delivers claim events to users. The workflow treats it as
// fire-and-forget: a returned error is logged and never fails a transition.
type Notifier interface {
	Notify(ctx context.Context, userID string, eventType event.Type, payload map[string]interface{}) error
}

// EventSink delivers one event to an external channel (log, Lark, Kafka)
type EventSink interface {
	Name() string
	Send(ctx context.Context, evt *event.Event) error
}
