// Package mqttingress is the MQTT ingress adapter.
//
// It subscribes to {prefix}/+/+ on the broker, takes the device id and
// channel from the topic levels, decodes the message body with the
// configured content type and publishes one event per message.
//
// Messages carry no timestamp of their own; each is stamped at receipt
// through an ingress.Stamper so a (device, channel) stream never goes
// backwards.
//
// The paho client delivers messages in order from a single goroutine, so
// a BLOCK consumer that is full slows the subscription down instead of
// losing readings. The router's publish timeout bounds that wait.
package mqttingress
