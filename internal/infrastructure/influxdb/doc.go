// Package influxdb provides the InfluxDB v2 storage backend for sink consumers.
//
// It wraps the official influxdb-client-go v2 library's blocking write API
// and implements storage.Writer: one WriteBatch call is one HTTP request,
// and its failure is classified transient or permanent from the response
// status.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	driver, err := sink.New(handle, client, sinkCfg)
//
// # Data Layout
//
//	measurement: influxdb.measurement (default "telemetry")
//	tags:        device_id, channel
//	fields:      the event payload; bytes are base64 strings
//	time:        the event timestamp (ns precision)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
