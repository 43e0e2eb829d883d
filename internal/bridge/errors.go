package bridge

import "errors"

var (
	// ErrUnknownDevice is returned when a message targets an unregistered device.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrInvalidPayload is returned when a message body is not valid JSON.
	ErrInvalidPayload = errors.New("bridge: invalid payload")

	// ErrMergeRejected is returned when the registry refuses a notified merge
	// of a known device because no owner is stored for it.
	ErrMergeRejected = errors.New("bridge: merge rejected")
)
