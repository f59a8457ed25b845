package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"noisewatch/internal/config"
	"noisewatch/internal/evaluator"
	"noisewatch/internal/logger"
	"noisewatch/internal/metrics"
	"noisewatch/internal/models"
)

// evaluateMaxAttempts bounds in-place retries before the consumer
// gives up and lets the group redeliver from the last committed offset.
const evaluateMaxAttempts = 5

// Consumer reads change events from Kafka and runs each through the
// evaluator before committing its offset, preserving at-least-once
// delivery across restarts.
type Consumer struct {
	reader    *kafka.Reader
	evaluator *evaluator.Evaluator
	closed    atomic.Bool

	// Metrics
	handled atomic.Uint64
	failed  atomic.Uint64
}

// NewConsumer creates a consumer-group reader for the measurement
// change topic. Messages are keyed by device, so per-device ordering
// is preserved within a partition.
func NewConsumer(cfg config.KafkaConfig, ev *evaluator.Evaluator) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1 * 1024 * 1024,
		CommitInterval: 0, // Explicit commits only, after evaluation
	})

	return &Consumer{
		reader:    reader,
		evaluator: ev,
	}
}

// Run consumes until the context is cancelled or a message fails
// evaluation past its retry budget.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("consumer")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("consumer started")
	defer log.Info().Msg("consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// Offset stays uncommitted; the group redelivers the
			// message after restart or rebalance.
			c.failed.Add(1)
			log.Error().
				Err(err).
				Str("key", string(msg.Key)).
				Int64("offset", msg.Offset).
				Msg("event failed evaluation, leaving offset uncommitted")
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit offset: %w", err)
		}
		c.handled.Add(1)
	}
}

// handleMessage decodes and evaluates one message, retrying transient
// evaluation failures in place.
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) (err error) {
	log := logger.WithComponent("consumer")

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("consumer panic recovered")
			metrics.PanicsRecovered.WithLabelValues("consumer").Inc()
			err = fmt.Errorf("panic handling message at offset %d: %v", msg.Offset, r)
		}
	}()

	var event models.ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Poison message: log and skip, a malformed event can never
		// succeed on redelivery
		metrics.IntakeEventsTotal.WithLabelValues("kafka", "rejected").Inc()
		log.Warn().
			Err(err).
			Str("key", string(msg.Key)).
			Int64("offset", msg.Offset).
			Msg("skipping malformed change event")
		return nil
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		metrics.IntakeEventsTotal.WithLabelValues("kafka", "rejected").Inc()
		log.Warn().
			Err(err).
			Int64("offset", msg.Offset).
			Msg("skipping invalid change event")
		return nil
	}

	var lastErr error
	backoff := 250 * time.Millisecond
	for attempt := 0; attempt < evaluateMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		result, err := c.evaluator.HandleEvent(ctx, &event)
		if err == nil {
			if result.Outcome == evaluator.OutcomeSkipped {
				metrics.IntakeEventsTotal.WithLabelValues("kafka", "deleted").Inc()
			} else {
				metrics.IntakeEventsTotal.WithLabelValues("kafka", "handled").Inc()
			}
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("device_id", event.DeviceID).
			Int("attempt", attempt+1).
			Msg("evaluation attempt failed")
	}

	metrics.IntakeEventsTotal.WithLabelValues("kafka", "failed").Inc()
	return fmt.Errorf("after %d attempts: %w", evaluateMaxAttempts, lastErr)
}

// Stats returns consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Handled: c.handled.Load(),
		Failed:  c.failed.Load(),
	}
}

// Stats holds consumer metrics
type Stats struct {
	Handled uint64
	Failed  uint64
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}
	return c.reader.Close()
}
