package event

import "time"

// Key identifies an ordered stream: one channel of one device.
type Key struct {
	DeviceID string
	Channel  string
}

// String returns "device/channel".
func (k Key) String() string {
	return k.DeviceID + "/" + k.Channel
}

// Event is a canonical telemetry reading.
//
// Timestamp is assigned by the device or the ingress adapter and must be
// non-decreasing per Key for a single adapter instance. ReceivedAt is
// stamped by the router and only used for metrics and staleness.
// ID is a unique identifier consumers may use to tolerate duplicates.
type Event struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Channel    string    `json:"channel"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    Payload   `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Key returns the ordering key of the event.
func (e Event) Key() Key {
	return Key{DeviceID: e.DeviceID, Channel: e.Channel}
}

// Validate checks the fields every event must carry.
func (e Event) Validate() error {
	switch {
	case e.DeviceID == "":
		return ErrEmptyDeviceID
	case e.Channel == "":
		return ErrEmptyChannel
	case e.Timestamp.IsZero():
		return ErrZeroTimestamp
	}
	return nil
}
