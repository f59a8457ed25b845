// Package evaluator implements the hysteresis alert state machine. A
// single high spike or a single quiet dip never flips alert state:
// escalation needs a sustained run of high readings, stand-down a
// longer run of low ones, and within a high run a device pinned at a
// stable tier is never re-notified.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"noisewatch/internal/config"
	"noisewatch/internal/logger"
	"noisewatch/internal/metrics"
	"noisewatch/internal/models"
	"noisewatch/internal/notify"
	"noisewatch/internal/risk"
	"noisewatch/internal/state"
)

// Outcome labels what a single evaluation did.
type Outcome string

const (
	// OutcomeSkipped means the event was a deletion; nothing changed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCounting means counters advanced without a transition.
	OutcomeCounting Outcome = "counting"
	// OutcomeEscalated means a notification was dispatched and the
	// notified tier advanced.
	OutcomeEscalated Outcome = "escalated"
	// OutcomeStandDown means sustained low readings reset an active
	// alert back to quiet.
	OutcomeStandDown Outcome = "stand_down"
)

// Result reports what an evaluation decided.
type Result struct {
	Outcome Outcome
	// Tier is the instantaneous classification of the reading
	Tier risk.Tier
	// State is the persisted state after the evaluation
	State models.AlertState
}

// Evaluator consumes one measurement at a time and advances the
// device's persisted alert state through the store's atomic
// read-modify-write.
type Evaluator struct {
	store      state.Store
	dispatcher notify.Dispatcher
	cfg        config.AlertingConfig
}

// New constructs an Evaluator.
func New(store state.Store, dispatcher notify.Dispatcher, cfg config.AlertingConfig) *Evaluator {
	return &Evaluator{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// HandleEvent processes one change event. Deletions are a no-op.
func (e *Evaluator) HandleEvent(ctx context.Context, event *models.ChangeEvent) (Result, error) {
	if event.IsDeletion() {
		return Result{Outcome: OutcomeSkipped}, nil
	}
	return e.Evaluate(ctx, event.DeviceID, event.After)
}

// Evaluate runs the transition for one measurement:
//
//  1. Counters advance in one atomic update. This also applies
//     stand-down, and decides whether an escalation is due.
//  2. If escalating, the notification is dispatched. Counters are
//     never rolled back on dispatch failure; the error propagates so
//     the triggering event is redelivered.
//  3. On dispatch success a second atomic update advances
//     LastNotifiedTier, rechecking the strictly-greater condition so a
//     duplicate delivery of the same event cannot double-notify.
func (e *Evaluator) Evaluate(ctx context.Context, deviceID string, m *models.Measurement) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	log := logger.WithComponent("evaluator").With().Str("device_id", deviceID).Logger()

	noiseLevel := m.NoiseLevelDB()
	tier, advisory := risk.Classify(noiseLevel)

	var escalate, standDown bool
	st, err := e.store.Update(ctx, deviceID, func(cur models.AlertState) (models.AlertState, error) {
		// The closure may rerun on transaction conflict
		escalate, standDown = false, false

		if noiseLevel >= e.cfg.HighNoiseThresholdDB {
			cur.ConsecutiveHighCount++
			cur.ConsecutiveLowCount = 0
			if cur.ConsecutiveHighCount >= e.cfg.HighPersistenceThreshold && tier.Above(cur.LastNotifiedTier) {
				escalate = true
			}
		} else {
			cur.ConsecutiveLowCount++
			cur.ConsecutiveHighCount = 0
			if cur.ConsecutiveLowCount >= e.cfg.LowPersistenceThreshold && cur.Alerting() {
				cur.LastNotifiedTier = risk.None
				standDown = true
			}
		}
		return cur, nil
	})
	if err != nil {
		metrics.MeasurementsEvaluated.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("advance counters: %w", err)
	}

	if standDown {
		log.Info().
			Int("low_count", st.ConsecutiveLowCount).
			Msg("sustained safe levels, alert state reset")
		metrics.MeasurementsEvaluated.WithLabelValues(string(OutcomeStandDown)).Inc()
		metrics.StandDownsTotal.Inc()

		if e.cfg.NotifyAllClear {
			// Best effort: the reset stands even if the message fails
			if err := e.dispatcher.DispatchAllClear(ctx, deviceID); err != nil && !errors.Is(err, notify.ErrNotConfigured) {
				log.Warn().Err(err).Msg("all-clear message failed")
			}
		}
		return Result{Outcome: OutcomeStandDown, Tier: tier, State: st}, nil
	}

	if !escalate {
		metrics.MeasurementsEvaluated.WithLabelValues(string(OutcomeCounting)).Inc()
		return Result{Outcome: OutcomeCounting, Tier: tier, State: st}, nil
	}

	log.Info().
		Str("tier", tier.String()).
		Float64("noise_db", noiseLevel).
		Int("high_count", st.ConsecutiveHighCount).
		Msg("alert escalated, dispatching notification")

	if err := e.dispatcher.Dispatch(ctx, deviceID, m, advisory); err != nil {
		if !errors.Is(err, notify.ErrNotConfigured) {
			// Counters stay persisted; the notified tier does not
			// advance, so the retried event attempts the escalation
			// again.
			metrics.MeasurementsEvaluated.WithLabelValues("error").Inc()
			return Result{}, fmt.Errorf("dispatch escalation for %s: %w", deviceID, err)
		}
		// Missing credentials make dispatch a logged no-op; the state
		// transition still persists below so the device is not
		// re-escalated on every subsequent reading.
		log.Warn().Str("tier", tier.String()).Msg("notification skipped, channel not configured")
	}

	st, err = e.store.Update(ctx, deviceID, func(cur models.AlertState) (models.AlertState, error) {
		if tier.Above(cur.LastNotifiedTier) {
			cur.LastNotifiedTier = tier
			cur.ConsecutiveLowCount = 0
		}
		return cur, nil
	})
	if err != nil {
		metrics.MeasurementsEvaluated.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("persist notified tier: %w", err)
	}

	metrics.MeasurementsEvaluated.WithLabelValues(string(OutcomeEscalated)).Inc()
	metrics.EscalationsTotal.WithLabelValues(tier.String()).Inc()

	return Result{Outcome: OutcomeEscalated, Tier: tier, State: st}, nil
}
