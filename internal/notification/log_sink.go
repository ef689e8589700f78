package notification

import (
	"context"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/event"
	"go.uber.org/zap"
)

// LogSink writes every event to the structured log
type LogSink struct {
	logger *zap.Logger
}

var _ port.EventSink = (*LogSink)(nil)

// NewLogSink creates a sink on logger
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notification")}
}

// Name implements port.EventSink
func (s *LogSink) Name() string { return "log" }

// Send implements port.EventSink
func (s *LogSink) Send(ctx context.Context, evt *event.Event) error {
	s.logger.Info("Claim event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.String("claim_id", evt.ClaimID),
		zap.String("recipient", evt.Recipient),
		zap.Time("timestamp", evt.Timestamp),
		zap.Any("payload", evt.Payload))
	return nil
}
