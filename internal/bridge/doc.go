// Package bridge connects the device registry to MQTT.
//
// Inbound, it subscribes to the per-device set and exec topics and applies
// the payloads to the registry. Outbound, the owners it hands out publish
// every notified state change on the device's updated topic:
//
//	{prefix}/device/{id}/set      <- {"on": true}                  SetState
//	{prefix}/device/{id}/exec     <- {"states": {...}, "notify": false}  Merge
//	{prefix}/device/{id}/updated  -> {"device_id": ..., "states": {...}}
//
// Devices declared in configuration are registered through the category
// builders with a bridge owner, so updates made over MQTT or the HTTP API
// are echoed back to the broker.
package bridge
