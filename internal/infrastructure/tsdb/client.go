package tsdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

const (
	connectTimeout = 10 * time.Second
	healthTimeout  = 5 * time.Second

	defaultMeasurement = "telemetry"

	// maxErrorBody caps how much of a rejection body is kept in the error.
	maxErrorBody = 512
)

// Client writes telemetry batches to VictoriaMetrics as InfluxDB line
// protocol, one POST /write per batch. Batching and retry belong to the
// sink driver calling it. Safe for concurrent use.
type Client struct {
	base        string
	measurement string
	gzip        bool
	http        *http.Client
	open        atomic.Bool
}

// Connect checks GET /health and returns a client for the configured server.
//
// Parameters:
//   - ctx: Bounds the health check
//   - cfg: tsdb section of config.yaml
//
// Returns:
//   - *Client: Ready to write
//   - error: ErrDisabled, or ErrConnectionFailed if /health does not answer 200
func Connect(ctx context.Context, cfg config.TSDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		base:        strings.TrimRight(cfg.URL, "/"),
		measurement: cfg.Measurement,
		gzip:        cfg.Gzip,
		// Write deadlines come from the caller's context.
		http: &http.Client{},
	}
	if c.measurement == "" {
		c.measurement = defaultMeasurement
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.checkHealth(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.open.Store(true)
	return c, nil
}

// Close stops the client; later writes fail as transient.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.open.Store(false)
	c.http.CloseIdleConnections()
	return nil
}

// HealthCheck calls GET /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.checkHealth(ctx)
}

func (c *Client) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return fmt.Errorf("tsdb health check: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tsdb health check: %w", err)
	}
	drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tsdb health check: status %d", resp.StatusCode)
	}
	return nil
}

// IsConnected reports whether Connect succeeded and Close has not run.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// WriteBatch posts events as newline-delimited line protocol.
//
// Events with no storable fields are skipped. A 4xx response other than
// 408 and 429 is a permanent failure; transport errors and other statuses
// are transient.
func (c *Client) WriteBatch(ctx context.Context, events []event.Event) error {
	if !c.IsConnected() {
		return storage.Transient(ErrNotConnected)
	}

	body, n := c.encode(events)
	if n == 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/write", body)
	if err != nil {
		return storage.Permanent(fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return storage.Transient(fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		drain(resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	drain(resp.Body)
	return storage.Mark(resp.StatusCode,
		fmt.Errorf("%w: HTTP %d: %s", ErrWriteFailed, resp.StatusCode, strings.TrimSpace(string(msg))))
}

// encode renders the batch, gzipped when configured, and returns the
// number of lines written.
func (c *Client) encode(events []event.Event) (*bytes.Buffer, int) {
	var buf bytes.Buffer
	var w io.Writer = &buf
	var zw *gzip.Writer
	if c.gzip {
		zw = gzip.NewWriter(&buf)
		w = zw
	}

	n := 0
	for _, ev := range events {
		line, ok := formatEvent(c.measurement, ev)
		if !ok {
			continue
		}
		io.WriteString(w, line) //nolint:errcheck // in-memory
		io.WriteString(w, "\n") //nolint:errcheck // in-memory
		n++
	}
	if zw != nil {
		zw.Close() //nolint:errcheck // in-memory
	}
	return &buf, n
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
