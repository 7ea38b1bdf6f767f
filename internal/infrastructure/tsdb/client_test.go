package tsdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// fakeVM mimics the VictoriaMetrics /health and /write endpoints.
type fakeVM struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (f *fakeVM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		w.WriteHeader(http.StatusOK)
	case "/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		status := f.status
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte("cannot parse line"))
		}
	default:
		http.NotFound(w, r)
	}
}

func connect(t *testing.T) (*tsdb.Client, *fakeVM) {
	t.Helper()
	fake := &fakeVM{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := tsdb.Connect(context.Background(), config.TSDBConfig{Enabled: true, URL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, fake
}

func reading(device string, v float64) event.Event {
	return event.Event{
		DeviceID:  device,
		Channel:   "temp",
		Timestamp: time.Unix(1700000000, 0),
		Payload:   event.MustPayload(event.Field{Name: "value", Value: event.Float(v)}),
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	_, err := tsdb.Connect(context.Background(), config.TSDBConfig{Enabled: false})
	if !errors.Is(err, tsdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := tsdb.Connect(context.Background(), config.TSDBConfig{Enabled: true, URL: srv.URL})
	if !errors.Is(err, tsdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	client, _ := connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteBatch_OneRequestPerBatch(t *testing.T) {
	client, fake := connect(t)

	batch := []event.Event{reading("d1", 20), reading("d2", 21), reading("d3", 22)}
	if err := client.WriteBatch(context.Background(), batch); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.bodies) != 1 {
		t.Fatalf("got %d requests, want 1", len(fake.bodies))
	}
	lines := strings.Split(strings.TrimSpace(fake.bodies[0]), "\n")
	want := "telemetry,channel=temp,device_id=d1 value=20 1700000000000000000"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
	if len(lines) != 3 {
		t.Errorf("got %d lines, want 3", len(lines))
	}
}

func TestWriteBatch_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   storage.Class
	}{
		{"bad request is permanent", http.StatusBadRequest, storage.ClassPermanent},
		{"too many requests is transient", http.StatusTooManyRequests, storage.ClassTransient},
		{"server error is transient", http.StatusInternalServerError, storage.ClassTransient},
	}

	client, fake := connect(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake.mu.Lock()
			fake.status = tt.status
			fake.mu.Unlock()

			err := client.WriteBatch(context.Background(), []event.Event{reading("d1", 1)})
			if !errors.Is(err, tsdb.ErrWriteFailed) {
				t.Fatalf("WriteBatch() error = %v, want ErrWriteFailed", err)
			}
			if got := storage.Classify(err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteBatch_TransportErrorIsTransient(t *testing.T) {
	fake := &fakeVM{}
	srv := httptest.NewServer(fake)
	client, err := tsdb.Connect(context.Background(), config.TSDBConfig{Enabled: true, URL: srv.URL})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	srv.Close()

	err = client.WriteBatch(context.Background(), []event.Event{reading("d1", 1)})
	if storage.Classify(err) != storage.ClassTransient {
		t.Errorf("WriteBatch() error = %v, want transient", err)
	}
}

func TestWriteBatch_NothingToWrite(t *testing.T) {
	client, fake := connect(t)

	empty := event.Event{DeviceID: "d1", Channel: "c", Timestamp: time.Unix(1, 0)}
	if err := client.WriteBatch(context.Background(), []event.Event{empty}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.bodies) != 0 {
		t.Errorf("got %d requests for an empty batch, want 0", len(fake.bodies))
	}
}

func TestWriteBatch_AfterClose(t *testing.T) {
	client, _ := connect(t)
	_ = client.Close()

	err := client.WriteBatch(context.Background(), []event.Event{reading("d1", 1)})
	if !errors.Is(err, tsdb.ErrNotConnected) {
		t.Errorf("WriteBatch() error = %v, want ErrNotConnected", err)
	}
}

func TestWriteBatch_Gzip(t *testing.T) {
	var (
		mu       sync.Mutex
		encoding string
		body     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(zr)
		mu.Lock()
		encoding = r.Header.Get("Content-Encoding")
		body = string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := tsdb.Connect(context.Background(), config.TSDBConfig{Enabled: true, URL: srv.URL, Gzip: true})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.WriteBatch(context.Background(), []event.Event{reading("d1", 20), reading("d2", 21)}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if encoding != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", encoding)
	}
	if n := strings.Count(body, "\n"); n != 2 {
		t.Errorf("decoded body has %d lines, want 2: %q", n, body)
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	client, _ := connect(t)
	_ = client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, tsdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}
