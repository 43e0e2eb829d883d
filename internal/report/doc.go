// Package report provides device.Reporter sinks that forward notified state
// changes from the registry to the outside world.
//
//   - MQTTPublisher publishes the retained full state of a device.
//   - Telemetry writes numeric and boolean states as time-series points.
//   - History appends every change to the SQLite audit trail.
//
// Reporters run on the goroutine that changed the state, after the registry
// lock has been released. They never return errors to the registry; failures
// are logged and dropped.
package report
