package device

import "errors"

// Errors returned by the state history repository.
//
// Registry operations report failure through boolean results instead; these
// errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceIDRequired) {
//	    // handle missing id
//	}
var (
	// ErrDeviceIDRequired is returned when a history call has an empty device id.
	ErrDeviceIDRequired = errors.New("device: device id is required")

	// ErrInvalidRetention is returned when a prune window is not positive.
	ErrInvalidRetention = errors.New("device: retention must be positive")

	// ErrInvalidTimestamp is returned when a stored timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("device: invalid timestamp")
)
