// Package notify delivers alert messages to the outbound channel.
package notify

import (
	"context"
	"errors"

	"noisewatch/internal/models"
)

// Dispatch errors
var (
	// ErrNotConfigured means credentials are absent. Callers treat
	// this as a logged no-op, not a delivery failure: state
	// transitions still persist without notification.
	ErrNotConfigured = errors.New("notification channel is not configured")
)

// Dispatcher sends formatted alert messages for a device. Dispatch
// returns nil only when the remote endpoint acknowledged the message;
// the evaluator relies on that to gate escalation state.
type Dispatcher interface {
	// Dispatch sends the escalation alert for a measurement.
	Dispatch(ctx context.Context, deviceID string, m *models.Measurement, advisory string) error

	// DispatchAllClear sends the optional stand-down message.
	DispatchAllClear(ctx context.Context, deviceID string) error
}
