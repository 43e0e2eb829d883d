// Package influxdb writes device state telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks. Every
// notified state change becomes one device_state point with the numeric
// and boolean states as fields.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("thermostat", states, version, time.Now())
package influxdb
