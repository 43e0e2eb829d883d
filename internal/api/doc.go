// Package api implements the operator HTTP API and WebSocket server of the
// device registry.
//
// This package provides:
//   - REST endpoints for reading device properties, states and status
//   - device creation through the category builders
//   - state updates and raw merges with owner notification
//   - a WebSocket hub that streams notified state changes per device
//   - middleware (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin layer over *device.Registry. The WebSocket Hub is a
// device.Reporter: once added to the registry, every notified merge made
// through HTTP, MQTT or any other owner is pushed to WebSocket clients that
// follow the device. A subscribing client first receives a snapshot of the
// devices it follows, stamped with the registry version.
//
// # Graceful Degradation
//
// The server needs only a registry and a logger. Components that are not
// configured (MQTT, InfluxDB, SQLite) are simply absent from /health.
package api
