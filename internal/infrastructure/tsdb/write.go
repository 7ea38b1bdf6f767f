package tsdb

import (
	"encoding/base64"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
)

// formatEvent renders one event as a line protocol line.
//
// Format: measurement,channel=c,device_id=d field1=v1,field2=v2 timestamp_ns
//
// Fields keep payload order. NaN and infinities are not representable in
// line protocol and are left out; ok is false when no field remains.
func formatEvent(measurement string, ev event.Event) (string, bool) {
	return formatLineProtocol(measurement,
		map[string]string{
			"device_id": ev.DeviceID,
			"channel":   ev.Channel,
		},
		ev.Payload.Fields(),
		ev.Timestamp.UnixNano(),
	)
}

// formatLineProtocol formats a data point as an InfluxDB line protocol string.
//
// VictoriaMetrics accepts this format on the /write endpoint.
func formatLineProtocol(measurement string, tags map[string]string, fields []event.Field, tsNano int64) (string, bool) {
	var b strings.Builder

	// Measurement (escaped to prevent injection)
	b.WriteString(escapeMeasurement(measurement))

	// Tags (sorted for deterministic output and testability)
	tagKeys := make([]string, 0, len(tags))
	for k := range tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(tags[k]))
	}

	b.WriteByte(' ')
	written := 0
	for _, f := range fields {
		val, ok := formatField(f.Value)
		if !ok {
			continue
		}
		if written > 0 {
			b.WriteByte(',')
		}
		written++
		b.WriteString(escapeTag(f.Name))
		b.WriteByte('=')
		b.WriteString(val)
	}
	if written == 0 {
		return "", false
	}

	// Timestamp in nanoseconds
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(tsNano, 10))

	return b.String(), true
}

func formatField(v event.Value) (string, bool) {
	switch v.Kind() {
	case event.KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		return strconv.FormatFloat(f, 'g', -1, 64), true
	case event.KindInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10) + "i", true
	case event.KindBool:
		bv, _ := v.AsBool()
		return strconv.FormatBool(bv), true
	case event.KindString:
		s, _ := v.AsString()
		return quoteField(s), true
	case event.KindBytes:
		raw, _ := v.AsBytes()
		return quoteField(base64.StdEncoding.EncodeToString(raw)), true
	default:
		return "", false
	}
}

// quoteField quotes a string field value. Only '"' and '\' need escaping;
// newlines are stripped to prevent line protocol injection.
func quoteField(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// escapeTag escapes special characters in line protocol tag keys and values.
// Commas, equals signs, and spaces must be backslash-escaped.
// Newlines are stripped to prevent line protocol injection.
func escapeTag(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "=", "\\=")
	return s
}

// escapeMeasurement escapes special characters in measurement names.
// Newlines are stripped to prevent line protocol injection.
func escapeMeasurement(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	return s
}
