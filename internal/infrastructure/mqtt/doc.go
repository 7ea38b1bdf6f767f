// Package mqtt provides MQTT client connectivity for the telemetry service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Devices publish readings to the broker; the MQTT ingress adapter
// subscribes to the telemetry tree and hands each message to the router.
//
//	Devices → MQTT Broker → mqttingress → Router → consumers
//
// # Topic Layout
//
//	{prefix}/{device_id}/{channel}   telemetry readings
//	{prefix}/status                  retained service status (online/offline)
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Ingress.MQTT.TopicPrefix))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
