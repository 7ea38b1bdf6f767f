package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/deadletter"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingress"
	"github.com/nerrad567/gray-logic-telemetry/internal/live"
	"github.com/nerrad567/gray-logic-telemetry/internal/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// AdapterName labels events received over HTTP in ingress metrics.
const AdapterName = "http"

// StateReader serves live device state. *live.Aggregator satisfies it.
type StateReader interface {
	GetState(deviceID string) (map[string]live.Entry, bool)
	Devices() []string
}

// ConsumerStatser lists router registrations. *router.Router satisfies it.
type ConsumerStatser interface {
	Stats() []router.ConsumerStats
}

// HealthChecker is implemented by infrastructure clients reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps is everything New needs. Optional collaborators disable their routes
// or features when nil.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Ingress  config.HTTPIngressConfig
	Logger   *logging.Logger

	// Publisher receives decoded events. Required when Ingress.Enabled.
	Publisher ingress.Publisher

	State       StateReader           // optional: device endpoints and get_state
	Consumers   ConsumerStatser       // optional: /api/v1/consumers
	DeadLetters deadletter.Repository // optional: /api/v1/deadletters
	Metrics     *metrics.Metrics      // optional: /metrics and ingress counters
	Health      map[string]HealthChecker

	Clock       clock.Clock // defaults to the wall clock
	ExternalHub *Hub        // shared with the live aggregator; Start creates one when nil
	Version     string
}

// Server serves HTTP ingress, the dashboard WebSocket, health, metrics and
// the read-only inspection endpoints. Create it with New, then Start.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	ingressCfg config.HTTPIngressConfig
	logger     *logging.Logger

	publisher   ingress.Publisher
	stamper     *ingress.Stamper
	observer    ingress.Observer
	basicAuth   *auth.BasicAuthenticator
	limiter     *deviceLimiter
	state       StateReader
	consumers   ConsumerStatser
	deadLetters deadletter.Repository
	metrics     *metrics.Metrics
	health      map[string]HealthChecker
	clock       clock.Clock
	version     string

	server *http.Server
	addr   string
	hub    *Hub
	cancel context.CancelFunc
}

// New wires a server from deps without binding anything.
//
// Parameters:
//   - deps: Logger is required, and Publisher too when HTTP ingress is on
//
// Returns:
//   - *Server: Ready to Start
//   - error: If a required dependency is missing or an ingress credential is unusable
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Ingress.Enabled && deps.Publisher == nil {
		return nil, fmt.Errorf("publisher is required when http ingress is enabled")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		ingressCfg:  deps.Ingress,
		logger:      deps.Logger,
		publisher:   deps.Publisher,
		observer:    ingress.NopObserver{},
		state:       deps.State,
		consumers:   deps.Consumers,
		deadLetters: deps.DeadLetters,
		metrics:     deps.Metrics,
		health:      deps.Health,
		clock:       deps.Clock,
		version:     deps.Version,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	s.stamper = ingress.NewStamper(s.clock, ingress.DefaultStamperKeys)
	if deps.Metrics != nil {
		s.observer = deps.Metrics.IngressObserver()
	}

	if deps.Ingress.Auth.Enabled {
		ba, err := auth.NewBasicAuthenticator(deps.Ingress.Auth.Users)
		if err != nil {
			return nil, fmt.Errorf("ingress basic auth: %w", err)
		}
		s.basicAuth = ba
	}

	if rl := deps.Security.RateLimit; rl.Enabled {
		s.limiter = newDeviceLimiter(rl.RequestsPerMinute, rl.Burst, ingress.DefaultStamperKeys)
	}

	// The live aggregator may already hold the hub as its notifier.
	s.hub = deps.ExternalHub

	return s, nil
}

// Start binds the listener and serves in the background until Close.
// Binding happens before Start returns, so an address already in use is
// reported here rather than logged later.
//
// Parameters:
//   - ctx: Parent of the context that stops an internally created hub
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(hubCtx)
	}
	if s.state != nil {
		s.hub.SetStateReader(s.state)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		cancel()
		return fmt.Errorf("binding %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr().String()

	tlsCfg := s.cfg.TLS
	s.logger.Info("API server listening", "address", s.addr, "tls", tlsCfg.Enabled)

	go func() {
		var serveErr error
		if tlsCfg.Enabled {
			serveErr = s.server.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			serveErr = s.server.Serve(ln)
		}
		if !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", serveErr)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	return s.addr
}

// Close stops accepting connections and waits for in-flight requests, up
// to gracefulShutdownTimeout. A hub created by Start is stopped too.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
