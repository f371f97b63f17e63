package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/barter-backend/pkg/db/models"
	"github.com/angelmondragon/barter-backend/pkg/outbox/registry"
)

type verdict int

const (
	published verdict = iota
	retryLater
	giveUp
)

// outcome is what happened to one row and how it should be recorded.
type outcome struct {
	verdict verdict
	reason  string
	err     error
	fields  map[string]any
}

// processBatch claims up to batchSize rows in one transaction, publishes
// them in order and records each outcome before commit. One row failing never
// stops the rest of the batch. Rows the batch budget cannot cover stay
// unpublished and unmarked for the next tick, so marks and commit always land
// before the transaction deadline.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(s.txTimeout)
	reserve := s.txTimeout / 10
	processed := false
	err := s.db.WithTxTimeout(ctx, s.txTimeout, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for i, event := range events {
			budget := min(defaultPublishTimeout, time.Until(deadline)-reserve)
			if budget <= 0 {
				s.logg.Warn(s.logg.WithField(ctx, "deferred", len(events)-i), "outbox batch budget spent")
				return nil
			}
			if err := s.record(ctx, tx, event, s.dispatch(ctx, event, budget)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent, timeout time.Duration) outcome {
	fields := baseFields(event)
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{verdict: giveUp, reason: "non_retryable", err: err, fields: fields}
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Descriptor.Topic
	fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)

	err = s.publish(ctx, event, resolved, timeout)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		return outcome{verdict: published, fields: fields}
	case errors.As(err, &permanent):
		return outcome{verdict: giveUp, reason: "non_retryable", err: err, fields: fields}
	case event.AttemptCount+1 >= s.maxAttempts:
		return outcome{verdict: giveUp, reason: "max_attempts", err: fmt.Errorf("max publish attempts reached: %w", err), fields: fields}
	default:
		return outcome{verdict: retryLater, err: err, fields: fields}
	}
}

// record writes the outcome back to the row. A giveUp row keeps its payload
// since trade history is read from the outbox; it only stops being fetched.
func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, o outcome) error {
	logCtx := s.logg.WithFields(ctx, o.fields)
	switch o.verdict {
	case published:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case retryLater:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":         o.err.Error(),
			"attempt_count": event.AttemptCount + 1,
		}), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, o.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case giveUp:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":           o.err.Error(),
			"terminal_reason": o.reason,
		}), "outbox event will not be retried")
		if err := s.repo.MarkTerminalTx(tx, event.ID, o.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

// publish sends the stored envelope byte for byte. Consumers dedupe on the
// event_id attribute.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent, timeout time.Duration) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: []byte(event.Payload),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func baseFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
