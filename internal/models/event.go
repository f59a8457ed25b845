package models

import (
	"errors"
	"strings"
)

// Validation errors
var (
	ErrEmptyDeviceID  = errors.New("change event device ID cannot be empty")
	ErrEmptyTimestamp = errors.New("change event timestamp cannot be empty")
)

// ChangeEvent is one "value written" notification for a measurement
// path. Before and After are snapshots of the record at that path; a
// nil After means the value was deleted.
type ChangeEvent struct {
	// Device identifier from the written path
	DeviceID string `json:"device_id"`

	// Ordering key from the written path, ascending per device
	Timestamp string `json:"timestamp"`

	// Snapshot before the write, nil on first write
	Before *Measurement `json:"before,omitempty"`

	// Snapshot after the write, nil on deletion
	After *Measurement `json:"after,omitempty"`
}

// IsDeletion reports whether the write removed the value. Deletions
// are a no-op for the evaluator.
func (e *ChangeEvent) IsDeletion() bool {
	return e.After == nil
}

// Normalize trims identifier fields.
func (e *ChangeEvent) Normalize() {
	e.DeviceID = strings.TrimSpace(e.DeviceID)
	e.Timestamp = strings.TrimSpace(e.Timestamp)
}

// Validate checks the event carries enough to locate its device record.
func (e *ChangeEvent) Validate() error {
	if e.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if e.Timestamp == "" {
		return ErrEmptyTimestamp
	}
	return nil
}
