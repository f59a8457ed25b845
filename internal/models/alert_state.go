package models

import (
	"noisewatch/internal/risk"
)

// AlertState is the per-device alerting record, the only entity with
// cross-event memory. A device with no record is in the zero state.
//
// Invariant: at most one of the two counters advances per reading;
// the other resets to 0.
type AlertState struct {
	// Consecutive readings at or above the high-noise threshold
	ConsecutiveHighCount int `json:"consecutiveHighCount"`

	// Consecutive readings below the high-noise threshold
	ConsecutiveLowCount int `json:"consecutiveLowCount"`

	// Tier of the last notification sent; None while quiet
	LastNotifiedTier risk.Tier `json:"lastNotifiedTier"`
}

// Alerting reports whether the device is in an active alert.
func (s AlertState) Alerting() bool {
	return s.LastNotifiedTier != risk.None
}
