// Package mqtt provides the MQTT client used to connect the device
// registry to the rest of the home.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained state topics
//   - Wildcard subscriptions restored after reconnect
//   - A retained Last Will on {prefix}/system/status
//
// # Topics
//
//	{prefix}/device/{id}/set      inbound states for SetState
//	{prefix}/device/{id}/exec     inbound partial update, notifying merge
//	{prefix}/device/{id}/updated  owner notification with full states
//	{prefix}/device/{id}/state    retained state report
//	{prefix}/system/status        online/offline
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllDeviceSets(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _, err := client.Topics().ParseDeviceTopic(topic)
//	        ...
//	    })
package mqtt
