package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/live"
	"github.com/nerrad567/gray-logic-telemetry/internal/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
	"github.com/nerrad567/gray-logic-telemetry/internal/sink"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// ErrUnknownBackend is returned when a sink names a backend with no writer.
var ErrUnknownBackend = errors.New("pipeline: no writer for backend")

// Deps holds what New needs to build the pipeline.
type Deps struct {
	Config *config.Config
	Logger *logging.Logger

	// Writers maps a backend name ("influxdb", "tsdb") to its storage writer.
	Writers map[string]storage.Writer

	DeadLetters sink.DeadLetters // optional
	Notifier    live.Notifier    // optional: receives live state deltas
	Metrics     *metrics.Metrics // optional
	Clock       clock.Clock      // defaults to the wall clock
}

type sinkRunner struct {
	id     string
	driver *sink.Driver
}

// Pipeline owns the router and every consumer registered on it.
type Pipeline struct {
	router *router.Router
	sinks  []sinkRunner
	live   *live.Aggregator
	handle *router.ConsumerHandle // live consumer, nil when disabled
	logger *logging.Logger
}

// New builds the router and registers the configured consumers.
//
// Parameters:
//   - deps: Configuration, logger and one writer per backend used by consumers.sinks
//
// Returns:
//   - *Pipeline: Ready to Run; publishers may call Router().Publish immediately
//   - error: If a sink backend has no writer or a consumer setting is invalid
func New(deps Deps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	cfg := deps.Config

	ropts := []router.Option{
		router.WithClock(clk),
		router.WithStrict(cfg.Router.Strict),
		router.WithPublishTimeout(cfg.Router.PublishTimeout),
		router.WithLogger(deps.Logger.Component("router")),
	}
	if deps.Metrics != nil {
		ropts = append(ropts, router.WithObserver(deps.Metrics.RouterObserver()))
	}

	p := &Pipeline{
		router: router.New(ropts...),
		logger: deps.Logger.Component("pipeline"),
	}
	if deps.Metrics != nil {
		if err := deps.Metrics.WatchQueues(p.router.Stats); err != nil {
			return nil, fmt.Errorf("registering queue metrics: %w", err)
		}
	}

	for _, sc := range cfg.Consumers.Sinks {
		if err := p.addSink(sc, deps, clk); err != nil {
			p.unregisterAll()
			return nil, err
		}
	}

	if lc := cfg.Consumers.Live; lc.Enabled {
		if err := p.addLive(lc, deps); err != nil {
			p.unregisterAll()
			return nil, err
		}
	}

	return p, nil
}

func (p *Pipeline) addSink(sc config.SinkConfig, deps Deps, clk clock.Clock) error {
	writer, ok := deps.Writers[sc.Backend]
	if !ok || writer == nil {
		return fmt.Errorf("%w: sink %q backend %q", ErrUnknownBackend, sc.ID, sc.Backend)
	}
	policy, err := router.ParsePolicy(sc.Policy)
	if err != nil {
		return fmt.Errorf("sink %q: %w", sc.ID, err)
	}

	handle, err := p.router.Register(sc.ID, sc.Capacity, policy, router.WithErrorHook(p.onDisconnect))
	if err != nil {
		return fmt.Errorf("registering sink %q: %w", sc.ID, err)
	}

	opts := []sink.Option{
		sink.WithClock(clk),
		sink.WithLogger(deps.Logger.Component("sink").With("consumer", sc.ID)),
	}
	if deps.Metrics != nil {
		opts = append(opts, sink.WithObserver(deps.Metrics.SinkObserver()))
	}
	if deps.DeadLetters != nil {
		opts = append(opts, sink.WithDeadLetters(deps.DeadLetters))
	}

	driver, err := sink.New(handle, writer, sink.Config{
		BatchSize:     sc.BatchSize,
		FlushInterval: sc.FlushInterval,
		WriteTimeout:  sc.WriteTimeout,
		Backoff:       backoffFromConfig(sc.Backoff),
	}, opts...)
	if err != nil {
		handle.Unregister()
		return fmt.Errorf("sink %q: %w", sc.ID, err)
	}

	p.sinks = append(p.sinks, sinkRunner{id: sc.ID, driver: driver})
	p.logger.Info("sink registered", "consumer", sc.ID, "backend", sc.Backend,
		"capacity", sc.Capacity, "policy", policy.String())
	return nil
}

// backoffFromConfig converts the YAML backoff. An all-zero section keeps
// the driver default.
func backoffFromConfig(b config.BackoffConfig) sink.Backoff {
	return sink.Backoff{
		Initial:    b.Initial,
		Max:        b.Max,
		Multiplier: b.Multiplier,
		Jitter:     b.Jitter,
		MaxRetries: b.MaxRetries,
	}
}

func (p *Pipeline) addLive(lc config.LiveConfig, deps Deps) error {
	policy, err := router.ParsePolicy(lc.Policy)
	if err != nil {
		return fmt.Errorf("live consumer: %w", err)
	}

	opts := []live.Option{live.WithLogger(deps.Logger.Component("live"))}
	if deps.Notifier != nil {
		opts = append(opts, live.WithNotifier(deps.Notifier))
	}
	if deps.Metrics != nil {
		opts = append(opts, live.WithObserver(deps.Metrics.LiveObserver()))
	}
	agg, err := live.New(lc.MaxDevices, opts...)
	if err != nil {
		return fmt.Errorf("live aggregator: %w", err)
	}

	handle, err := p.router.Register(lc.ID, lc.Capacity, policy, router.WithErrorHook(p.onDisconnect))
	if err != nil {
		return fmt.Errorf("registering live consumer: %w", err)
	}

	p.live = agg
	p.handle = handle
	p.logger.Info("live aggregator registered", "consumer", lc.ID,
		"capacity", lc.Capacity, "policy", policy.String(), "max_devices", lc.MaxDevices)
	return nil
}

func (p *Pipeline) onDisconnect(consumerID string, err error) {
	p.logger.Error("consumer disconnected by router", "consumer", consumerID, "error", err)
}

// Router returns the router ingress adapters publish to.
func (p *Pipeline) Router() *router.Router { return p.router }

// Live returns the live aggregator, or nil when it is disabled.
func (p *Pipeline) Live() *live.Aggregator { return p.live }

// Run drives every consumer until ctx is cancelled.
//
// Sink drivers flush what they hold before returning. A consumer that
// stops on its own is logged and does not stop the others.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range p.sinks {
		g.Go(func() error {
			if err := s.driver.Run(gctx); err != nil {
				var fatal *sink.FatalError
				if errors.As(err, &fatal) {
					p.logger.Error("sink consumer failed", "consumer", s.id, "error", err)
					return nil
				}
				p.logger.Error("sink consumer stopped", "consumer", s.id, "error", err)
			}
			return nil
		})
	}

	if p.live != nil {
		g.Go(func() error {
			if err := p.live.Run(gctx, p.handle); err != nil {
				p.logger.Error("live aggregator stopped", "error", err)
			}
			return nil
		})
	}

	p.logger.Info("pipeline running", "consumers", p.router.Consumers())
	err := g.Wait()
	p.unregisterAll()
	p.logger.Info("pipeline stopped")
	return err
}

// unregisterAll closes every remaining channel.
func (p *Pipeline) unregisterAll() {
	for _, id := range p.router.Consumers() {
		p.router.Unregister(id)
	}
}
