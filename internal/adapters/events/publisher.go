package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

// LoggingPublisher writes events to the log. It stands in for the broker when none is configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	p.logger.InfoContext(ctx, "published event",
		"module", "events.publisher",
		"layer", "adapter",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload", string(payload),
	)
	return nil
}

// FanoutPublisher delivers every event to each publisher in order. All
// publishers are attempted; their errors are joined.
type FanoutPublisher struct {
	publishers []ports.EventPublisher
}

func NewFanoutPublisher(publishers ...ports.EventPublisher) *FanoutPublisher {
	out := make([]ports.EventPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &FanoutPublisher{publishers: out}
}

func (f *FanoutPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, eventType, partitionKey, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
