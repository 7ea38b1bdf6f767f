package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// Sink defaults applied per list entry.
const (
	defaultSinkCapacity = 10000
	defaultSinkPolicy   = router.Block
)

// Load resolves the configuration in four layers: built-in defaults, the
// YAML file at path, TELEMETRY_* environment variables, then per-sink
// defaults. The result is validated before it is returned.
//
// Parameters:
//   - path: YAML configuration file
//
// Returns:
//   - *Config: Validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg, os.LookupEnv)
	cfg.applySinkDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig is the base every file is decoded onto.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Telemetry",
		},
		Database: DatabaseConfig{
			Path:        "./data/telemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "telemetry-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     64,
		},
		InfluxDB: InfluxDBConfig{
			Measurement: "telemetry",
		},
		TSDB: TSDBConfig{
			Measurement: "telemetry",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             20,
			},
		},
		Router: RouterConfig{
			PublishTimeout: 5 * time.Second,
		},
		Consumers: ConsumersConfig{
			Live: LiveConfig{
				Enabled:    true,
				ID:         "live",
				Capacity:   1024,
				Policy:     router.DropOldest.String(),
				MaxDevices: 10000,
			},
		},
		Ingress: IngressConfig{
			HTTP: HTTPIngressConfig{
				Enabled:        true,
				MaxPayloadSize: 65536,
				Auth: BasicAuthConfig{
					Realm: "telemetry",
				},
			},
			MQTT: MQTTIngressConfig{
				TopicPrefix: "telemetry",
				Format:      "application/json",
			},
		},
	}
}

// applySinkDefaults fills unset per-sink settings. Sinks arrive as a YAML
// list, so defaultConfig cannot seed them.
func (c *Config) applySinkDefaults() {
	for i := range c.Consumers.Sinks {
		s := &c.Consumers.Sinks[i]
		if s.ID == "" {
			s.ID = s.Backend
		}
		if s.Capacity == 0 {
			s.Capacity = defaultSinkCapacity
		}
		if s.Policy == "" {
			s.Policy = defaultSinkPolicy.String()
		}
	}
}

// envBindings maps TELEMETRY_* variables onto config fields. An unset or
// empty variable leaves its field alone, as does an int that does not parse.
func envBindings(cfg *Config) (strs map[string]*string, ints map[string]*int) {
	strs = map[string]*string{
		"TELEMETRY_SITE_ID":         &cfg.Site.ID,
		"TELEMETRY_DATABASE_PATH":   &cfg.Database.Path,
		"TELEMETRY_MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"TELEMETRY_MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"TELEMETRY_MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"TELEMETRY_API_HOST":        &cfg.API.Host,
		"TELEMETRY_INFLUXDB_URL":    &cfg.InfluxDB.URL,
		"TELEMETRY_INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"TELEMETRY_INFLUXDB_ORG":    &cfg.InfluxDB.Org,
		"TELEMETRY_INFLUXDB_BUCKET": &cfg.InfluxDB.Bucket,
		"TELEMETRY_TSDB_URL":        &cfg.TSDB.URL,
		"TELEMETRY_LOG_LEVEL":       &cfg.Logging.Level,
		"TELEMETRY_LOG_FORMAT":      &cfg.Logging.Format,
		"TELEMETRY_JWT_SECRET":      &cfg.Security.JWT.Secret,
	}
	ints = map[string]*int{
		"TELEMETRY_MQTT_PORT": &cfg.MQTT.Broker.Port,
		"TELEMETRY_API_PORT":  &cfg.API.Port,
	}
	return strs, ints
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	strs, ints := envBindings(cfg)
	for name, field := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}
	for name, field := range ints {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			*field = n
		}
	}
}
