package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

// OutboxWorker drains the transactional outbox into an EventPublisher.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
	nowFn      func() time.Time
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BatchResult summarizes one ProcessOnce pass.
type BatchResult struct {
	Claimed      int
	Published    int
	Failed       int
	DeadLettered int
}

// ProcessOnce claims one batch and publishes it. Records that exhaust
// maxRetries are dead-lettered instead of retried.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (BatchResult, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, w.nowFn().Add(w.claimTTL))
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Claimed: len(records)}
	now := w.nowFn()
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			result.DeadLettered++
			outboxEvents.WithLabelValues(rec.EventType, "dead_lettered").Inc()
			w.mark(ctx, "mark_dead_lettered", w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now))
			continue
		}

		if err := w.publisher.Publish(ctx, rec.EventType, rec.PartitionKey, rec.Payload); err != nil {
			result.Failed++
			attempts := rec.RetryCount + 1
			if attempts >= w.maxRetries {
				result.DeadLettered++
				outboxEvents.WithLabelValues(rec.EventType, "dead_lettered").Inc()
				w.logger.ErrorContext(ctx, "outbox message dead-lettered",
					"module", "events.outbox_worker",
					"layer", "adapter",
					"operation", "publish_event",
					"outcome", "failure",
					"outbox_id", rec.OutboxID,
					"event_type", rec.EventType,
					"retry_count", attempts,
					"error", err,
				)
				w.mark(ctx, "mark_dead_lettered", w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now))
				continue
			}

			outboxEvents.WithLabelValues(rec.EventType, "failed").Inc()
			w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "publish_event",
				"outcome", "failure",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
				"retry_count", attempts,
				"error", err,
			)
			w.mark(ctx, "mark_failed", w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now))
			continue
		}

		result.Published++
		outboxEvents.WithLabelValues(rec.EventType, "published").Inc()
		w.mark(ctx, "mark_published", w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now))
	}

	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "events.outbox_worker",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", result.Claimed,
			"published_count", result.Published,
			"failed_count", result.Failed,
			"dead_lettered_count", result.DeadLettered,
		)
	}
	return result, nil
}

func (w *OutboxWorker) mark(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}
	w.logger.WarnContext(ctx, "outbox bookkeeping failed",
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
}
