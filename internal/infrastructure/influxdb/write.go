package influxdb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// WriteBatch writes events as one request.
//
// Each event becomes a point in the configured measurement tagged with
// device_id and channel, one field per payload field, at the event
// timestamp. Points sharing tags and timestamp overwrite each other in
// InfluxDB, so a retried batch does not duplicate data.
//
// Failures are classified for the sink driver: 4xx responses other than
// 408 and 429 are permanent (bad field types, schema conflicts), as is a
// batch the client cannot encode. Transport errors and other statuses are
// transient.
func (c *Client) WriteBatch(ctx context.Context, events []event.Event) error {
	if !c.IsConnected() {
		return storage.Transient(ErrNotConnected)
	}

	points := make([]*write.Point, 0, len(events))
	for _, ev := range events {
		if p := c.toPoint(ev); p != nil {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil
	}

	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return classify(err)
	}
	return nil
}

// toPoint converts an event. NaN and infinite floats have no line-protocol
// form and are skipped; an event left with no fields has nothing to store.
func (c *Client) toPoint(ev event.Event) *write.Point {
	fields := make(map[string]interface{}, ev.Payload.Len())
	for _, f := range ev.Payload.Fields() {
		if v, ok := f.Value.AsFloat(); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			continue
		}
		fields[f.Name] = fieldValue(f.Value)
	}
	if len(fields) == 0 {
		return nil
	}

	return write.NewPoint(
		c.measurement,
		map[string]string{
			"device_id": ev.DeviceID,
			"channel":   ev.Channel,
		},
		fields,
		ev.Timestamp,
	)
}

// fieldValue maps a payload value onto a type InfluxDB stores natively.
// Bytes have no native type and are stored base64 encoded.
func fieldValue(v event.Value) interface{} {
	if b, ok := v.AsBytes(); ok {
		return base64.StdEncoding.EncodeToString(b)
	}
	return v.Interface()
}

// classify maps a write error onto the storage contract. The client
// reports every request failure as *ihttp.Error; anything else failed while
// encoding the points and would fail again unchanged.
func classify(err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrWriteFailed, err)

	var herr *ihttp.Error
	switch {
	case !errors.As(err, &herr):
		return storage.Permanent(wrapped)
	case herr.StatusCode != 0:
		return storage.Mark(herr.StatusCode, wrapped)
	default:
		return storage.Transient(wrapped)
	}
}
