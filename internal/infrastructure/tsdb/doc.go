// Package tsdb provides the VictoriaMetrics storage backend for sink consumers.
//
// It writes InfluxDB line protocol over HTTP to /write and implements
// storage.Writer. Only net/http is used: the line protocol is a few
// escaping rules, and the write endpoint is a single POST.
//
// # Usage
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.WriteBatch(ctx, events)
//	if storage.Classify(err) == storage.ClassPermanent {
//	    // do not retry
//	}
//
// # Line Format
//
//	telemetry,channel=env,device_id=d1 temp=21.5,count=3i,label="kitchen" 1700000000000000000
//
// Field order follows the event payload. Bytes are written as base64
// strings; NaN and infinite floats are omitted.
package tsdb
