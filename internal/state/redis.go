package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"noisewatch/internal/logger"
	"noisewatch/internal/metrics"
	"noisewatch/internal/models"
)

// txMaxAttempts bounds the optimistic retry loop on WATCH conflicts.
const txMaxAttempts = 16

// RedisStore keeps one JSON-encoded AlertState per device under
// alert_status:{deviceId}, updated through WATCH/MULTI transactions so
// concurrent evaluations for the same device serialize instead of
// losing increments.
type RedisStore struct {
	client *redis.Client
	closed atomic.Bool
}

// NewRedisStore connects to Redis at addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func stateKey(deviceID string) string {
	return "alert_status:" + deviceID
}

// Get returns the device's current state, or the zero state if the
// device has no record yet.
func (s *RedisStore) Get(ctx context.Context, deviceID string) (models.AlertState, error) {
	if s.closed.Load() {
		return models.AlertState{}, ErrStoreClosed
	}

	start := time.Now()
	defer func() {
		metrics.StateOpDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	data, err := s.client.Get(ctx, stateKey(deviceID)).Bytes()
	if err == redis.Nil {
		return models.AlertState{}, nil
	}
	if err != nil {
		return models.AlertState{}, fmt.Errorf("state get %s: %w", deviceID, err)
	}

	return decodeState(deviceID, data)
}

// Update applies fn inside a WATCH transaction on the device key,
// retrying on conflict with another writer.
func (s *RedisStore) Update(ctx context.Context, deviceID string, fn UpdateFunc) (models.AlertState, error) {
	if s.closed.Load() {
		return models.AlertState{}, ErrStoreClosed
	}

	start := time.Now()
	defer func() {
		metrics.StateOpDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())
	}()

	key := stateKey(deviceID)
	var next models.AlertState

	txn := func(tx *redis.Tx) error {
		var current models.AlertState

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			// First measurement for this device: implicit zero state
		case err != nil:
			return err
		default:
			if current, err = decodeState(deviceID, data); err != nil {
				return err
			}
		}

		if next, err = fn(current); err != nil {
			return err
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	log := logger.WithComponent("state")
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return next, nil
		}
		if err == redis.TxFailedErr {
			// Another evaluation for the same device won the race
			metrics.StateConflicts.Inc()
			log.Debug().
				Str("device_id", deviceID).
				Int("attempt", attempt+1).
				Msg("state transaction conflict, retrying")
			continue
		}
		return models.AlertState{}, fmt.Errorf("state update %s: %w", deviceID, err)
	}

	return models.AlertState{}, fmt.Errorf("state update %s: transaction conflict after %d attempts", deviceID, txMaxAttempts)
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}
	return s.client.Close()
}

// decodeState unmarshals a persisted record. A corrupt record is
// surfaced as an error rather than silently reset: losing an active
// alert state is worse than retrying the event.
func decodeState(deviceID string, data []byte) (models.AlertState, error) {
	var st models.AlertState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.AlertState{}, fmt.Errorf("state decode %s: %w", deviceID, err)
	}
	return st, nil
}
