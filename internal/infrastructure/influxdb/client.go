package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

const (
	connectPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second

	defaultMeasurement = "telemetry"
)

// Client is an InfluxDB v2 batch writer for a sink consumer.
//
// Writes go through the blocking write API: each WriteBatch is one request
// and its outcome goes back to the sink driver, which owns retries and dead
// letters. Safe for concurrent use.
type Client struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	cfg         config.InfluxDBConfig
	measurement string
	open        atomic.Bool
}

// Connect creates the client and pings the server once.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: influxdb section of config.yaml
//
// Returns:
//   - *Client: Ready to write to cfg.Org / cfg.Bucket
//   - error: ErrDisabled, or ErrConnectionFailed if the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().SetPrecision(time.Nanosecond)
	c := &Client{
		client:      influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts),
		cfg:         cfg,
		measurement: cfg.Measurement,
	}
	if c.measurement == "" {
		c.measurement = defaultMeasurement
	}

	if err := c.ping(ctx, connectPingTimeout); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.writeAPI = c.client.WriteAPIBlocking(cfg.Org, cfg.Bucket)
	c.open.Store(true)
	return c, nil
}

func (c *Client) ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := c.client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !ok:
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// Close releases the HTTP client. Nothing is buffered, so nothing is flushed.
// Repeated calls are no-ops.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.open.CompareAndSwap(true, false) {
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.ping(ctx, healthPingTimeout); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether Connect succeeded and Close has not run.
// It does not touch the network; use HealthCheck for that.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}
