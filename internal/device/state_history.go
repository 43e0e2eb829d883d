package device

import (
	"context"
	"time"
)

// StateHistoryEntry is one recorded state change of a device.
//
// Each entry stores the full states of the device after a notified merge,
// together with the registry version that produced it.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the device.
	DeviceID string `json:"device_id"`

	// States is the JSON snapshot of the device states.
	States States `json:"states"`

	// Version is the registry version after the change.
	Version uint64 `json:"version"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state change history.
//
// It is an audit trail only: the registry never reads it back.
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange records the states of a device after a change.
	RecordStateChange(ctx context.Context, deviceID string, states States, version uint64) error

	// GetHistory returns recent entries for the device, newest first.
	// Implementations may clamp limit.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
