// Telemetry Core - device telemetry routing service
//
// telemetryd accepts telemetry over HTTP and MQTT, fans every event out to
// the configured consumers (time-series sinks and the live state
// aggregator), and serves live state to dashboards over WebSocket.
//
// Usage:
//
//	telemetryd [--config path]                 run the service
//	telemetryd hash-password [password]        print an Argon2id hash for ingress.http.auth
//	telemetryd token --subject name [--ttl d]  mint a dashboard token
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-telemetry/migrations"

	"github.com/nerrad567/gray-logic-telemetry/internal/api"
	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/deadletter"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingress/mqttingress"
	"github.com/nerrad567/gray-logic-telemetry/internal/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/pipeline"
	"github.com/nerrad567/gray-logic-telemetry/internal/storage"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnv overrides the default path when --config is not given.
	configEnv = "TELEMETRY_CONFIG"

	// pipelineDrainTimeout bounds how long shutdown waits for sinks to flush.
	pipelineDrainTimeout = 30 * time.Second
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand, defaulting to the service itself.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdin, stdout: Used by the helper subcommands
//
// Returns:
//   - error: nil on clean exit, or error describing failure
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "hash-password":
			return runHashPassword(args[1:], stdin, stdout)
		case "token":
			return runToken(args[1:], stdout)
		}
	}

	flags := pflag.NewFlagSet("telemetryd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	return serve(ctx, resolveConfigPath(*configPath))
}

// resolveConfigPath picks the flag, then TELEMETRY_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// serve runs the telemetry core until ctx is cancelled.
func serve(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting telemetry core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Dead letters live in SQLite
	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	deadLetters, err := deadletter.NewSQLiteRepository(db.DB)
	if err != nil {
		return fmt.Errorf("preparing dead-letter store: %w", err)
	}
	defer deadLetters.Close() //nolint:errcheck // statements only

	health := map[string]api.HealthChecker{"database": db}

	writers, closeWriters, err := connectWriters(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeWriters()

	m := metrics.New()
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	p, err := pipeline.New(pipeline.Deps{
		Config:      cfg,
		Logger:      log,
		Writers:     writers,
		DeadLetters: deadLetters,
		Notifier:    hub,
		Metrics:     m,
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	// Consumers outlive the signal context so sinks can flush after
	// ingress has stopped.
	pipelineCtx, stopPipeline := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPipeline()
	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- p.Run(pipelineCtx) }()

	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()
	go hub.Run(hubCtx)

	// MQTT ingress (optional)
	var mqttAdapter *mqttingress.Adapter
	if cfg.Ingress.MQTT.Enabled {
		var mqttClient *mqtt.Client
		mqttClient, mqttAdapter, err = startMQTTIngress(ctx, cfg, p, m, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient
	} else {
		log.Info("MQTT ingress disabled")
	}

	var state api.StateReader
	if agg := p.Live(); agg != nil {
		state = agg
	}
	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Ingress:     cfg.Ingress.HTTP,
		Logger:      log.Component("api"),
		Publisher:   p.Router(),
		State:       state,
		Consumers:   p.Router(),
		DeadLetters: deadLetters,
		Metrics:     m,
		Health:      health,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"consumers", p.Router().Consumers(),
	)
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Ingress first so nothing new reaches the router, then let the
	// consumers drain. Remaining closers run from the defer chain.
	if closeErr := srv.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	if mqttAdapter != nil {
		if stopErr := mqttAdapter.Stop(); stopErr != nil {
			log.Error("error stopping MQTT ingress", "error", stopErr)
		}
	}

	stopPipeline()
	select {
	case runErr := <-pipelineDone:
		if runErr != nil {
			log.Error("pipeline stopped with error", "error", runErr)
		}
	case <-time.After(pipelineDrainTimeout):
		log.Warn("pipeline did not drain in time", "timeout", pipelineDrainTimeout)
	}
	stopHub()

	log.Info("telemetry core stopped")
	return nil
}

// connectWriters opens every enabled time-series backend.
//
// Returns:
//   - map[string]storage.Writer: Writers keyed by backend name
//   - func(): Closes whatever was opened, in reverse order
//   - error: If an enabled backend cannot be reached
func connectWriters(ctx context.Context, cfg *config.Config, log *logging.Logger, health map[string]api.HealthChecker) (map[string]storage.Writer, func(), error) {
	writers := make(map[string]storage.Writer)
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		closers = append(closers, func() {
			log.Info("closing InfluxDB connection")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		writers["influxdb"] = client
		health["influxdb"] = client
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.TSDB.Enabled {
		client, err := tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting to TSDB: %w", err)
		}
		closers = append(closers, func() {
			log.Info("closing TSDB connection")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing TSDB", "error", closeErr)
			}
		})
		writers["tsdb"] = client
		health["tsdb"] = client
		log.Info("TSDB connected", "url", cfg.TSDB.URL)
	} else {
		log.Info("TSDB disabled")
	}

	return writers, closeAll, nil
}

// startMQTTIngress connects to the broker and subscribes the adapter.
func startMQTTIngress(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, m *metrics.Metrics, log *logging.Logger) (*mqtt.Client, *mqttingress.Adapter, error) {
	topics := mqtt.NewTopics(cfg.Ingress.MQTT.TopicPrefix)
	client, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	adapter := mqttingress.New(client, p.Router(), mqttingress.Config{
		Topics: topics,
		Format: cfg.Ingress.MQTT.Format,
		QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
	},
		mqttingress.WithObserver(m.IngressObserver()),
		mqttingress.WithLogger(log.Component("mqttingress")),
	)
	if err := adapter.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("starting MQTT ingress: %w", err)
	}
	return client, adapter, nil
}

// runHashPassword prints an Argon2id hash for an ingress credential.
// The password comes from the first argument or, failing that, one line of stdin.
func runHashPassword(args []string, stdin io.Reader, stdout io.Writer) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

// runToken mints a dashboard JWT signed with the configured secret.
func runToken(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML configuration file")
	subject := flags.String("subject", "", "token subject, e.g. the display name")
	ttl := flags.Duration("ttl", 0, "token lifetime (defaults to security.jwt.access_token_ttl)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("--subject is required")
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}
	token, err := auth.GenerateToken(*subject, auth.ScopeDashboard, cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
