package influxdb_test

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// fakeInflux answers /ping and records /api/v2/write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	query  string
	status int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.query = r.URL.RawQuery
		status := f.status
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		if status != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`))
			return
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeInflux) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func connect(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{
		Enabled: true,
		URL:     srv.URL,
		Token:   "test-token",
		Org:     "home",
		Bucket:  "telemetry",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, fake
}

func sample(device string, ts time.Time, fields ...event.Field) event.Event {
	return event.Event{
		DeviceID:  device,
		Channel:   "env",
		Timestamp: ts,
		Payload:   event.MustPayload(fields...),
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1"})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteBatch_LineProtocol(t *testing.T) {
	client, fake := connect(t)
	ts := time.Unix(1700000000, 0)

	batch := []event.Event{
		sample("d1", ts,
			event.Field{Name: "temp", Value: event.Float(21.5)},
			event.Field{Name: "count", Value: event.Int(3)},
			event.Field{Name: "ok", Value: event.Bool(true)},
			event.Field{Name: "label", Value: event.String("kitchen")},
		),
		sample("d2", ts.Add(time.Second), event.Field{Name: "raw", Value: event.Bytes([]byte("hi"))}),
		sample("d3", ts), // no fields: skipped
	}

	if err := client.WriteBatch(context.Background(), batch); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	writes := fake.writes()
	if len(writes) != 1 {
		t.Fatalf("got %d requests, want one per batch", len(writes))
	}
	lines := strings.Split(strings.TrimSpace(writes[0]), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), writes[0])
	}

	for _, want := range []string{"telemetry,channel=env,device_id=d1 ", "temp=21.5", "count=3i", "ok=true", `label="kitchen"`, "1700000000000000000"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line %q missing %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[1], `raw="aGk="`) {
		t.Errorf("line %q should carry base64 bytes", lines[1])
	}
	if !strings.Contains(fake.query, "bucket=telemetry") || !strings.Contains(fake.query, "org=home") {
		t.Errorf("query %q missing org/bucket", fake.query)
	}
}

func TestWriteBatch_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		status int
		want   storage.Class
	}{
		{http.StatusBadRequest, storage.ClassPermanent},
		{http.StatusUnprocessableEntity, storage.ClassPermanent},
		{http.StatusTooManyRequests, storage.ClassTransient},
		{http.StatusServiceUnavailable, storage.ClassTransient},
	}

	client, fake := connect(t)
	batch := []event.Event{sample("d1", time.Unix(1, 0), event.Field{Name: "v", Value: event.Int(1)})}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fake.setStatus(tt.status)
			err := client.WriteBatch(context.Background(), batch)
			if !errors.Is(err, influxdb.ErrWriteFailed) {
				t.Fatalf("WriteBatch() error = %v, want ErrWriteFailed", err)
			}
			if got := storage.Classify(err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteBatch_SkipsNonFiniteFloats(t *testing.T) {
	client, fake := connect(t)
	ts := time.Unix(1700000000, 0)

	batch := []event.Event{
		sample("d1", ts, event.Field{Name: "temp", Value: event.Float(21.5)}),
		sample("d2", ts,
			event.Field{Name: "hum", Value: event.Int(40)},
			event.Field{Name: "temp", Value: event.Float(math.NaN())},
		),
		sample("d3", ts, event.Field{Name: "temp", Value: event.Float(math.Inf(-1))}),
	}

	for range 2 {
		if err := client.WriteBatch(context.Background(), batch); err != nil {
			t.Fatalf("WriteBatch() error = %v (class %v)", err, storage.Classify(err))
		}
	}

	writes := fake.writes()
	if len(writes) != 2 {
		t.Fatalf("got %d requests, want 2", len(writes))
	}
	lines := strings.Split(strings.TrimSpace(writes[0]), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (d3 has no finite field): %q", len(lines), writes[0])
	}
	if !strings.Contains(lines[1], "device_id=d2") || !strings.Contains(lines[1], "hum=40i") {
		t.Errorf("line %q should keep the finite field", lines[1])
	}
	if strings.Contains(writes[0], "temp=NaN") || strings.Contains(writes[0], "Inf") {
		t.Errorf("non-finite value written: %q", writes[0])
	}
}

func TestWriteBatch_AfterClose(t *testing.T) {
	client, _ := connect(t)
	_ = client.Close()

	err := client.WriteBatch(context.Background(), []event.Event{sample("d1", time.Unix(1, 0), event.Field{Name: "v", Value: event.Int(1)})})
	if !errors.Is(err, influxdb.ErrNotConnected) || storage.Classify(err) != storage.ClassTransient {
		t.Errorf("WriteBatch() error = %v, want transient ErrNotConnected", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := connect(t)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
