// Package state persists per-device alert records. The store is the
// only shared mutable resource in the service: correctness of the
// hysteresis logic depends on Update being a linearizable
// read-modify-write per device key.
package state

import (
	"context"
	"errors"

	"noisewatch/internal/models"
)

// Store errors
var (
	ErrStoreClosed = errors.New("alert state store is closed")
)

// UpdateFunc transforms the current state of a device into its next
// state. It may be invoked more than once if the underlying
// transaction conflicts and retries, so it must be side-effect free.
type UpdateFunc func(models.AlertState) (models.AlertState, error)

// Store is the persistence gateway for per-device alert state.
type Store interface {
	// Get returns the current state for a device. A device with no
	// record yet yields the zero state, not an error.
	Get(ctx context.Context, deviceID string) (models.AlertState, error)

	// Update atomically applies fn to the device's current state and
	// persists the result. Two concurrent updates for the same device
	// must serialize: neither may observe the other's stale input.
	// Returns the persisted state.
	Update(ctx context.Context, deviceID string, fn UpdateFunc) (models.AlertState, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
