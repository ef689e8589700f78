package dispatcher

import (
	"context"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/event"
)

// Handler processes claim events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// SinkHandler adapts an event sink to a handler
func SinkHandler(sink port.EventSink) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		return sink.Send(ctx, evt)
	}
}
