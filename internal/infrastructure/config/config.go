package config

import (
	"time"
)

// Config mirrors config.yaml. See Load for how values are resolved.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	TSDB      TSDBConfig      `yaml:"tsdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Router    RouterConfig    `yaml:"router"`
	Consumers ConsumersConfig `yaml:"consumers"`
	Ingress   IngressConfig   `yaml:"ingress"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
// The database holds dead-lettered batches.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig is the broker connection used by MQTT ingress.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig is the HTTP listener serving ingress, the dashboard and /metrics.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists browser origins allowed to call the API. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig tunes the dashboard endpoint. Intervals are in seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// InfluxDBConfig is the InfluxDB v2 sink backend.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`

	// Measurement is the InfluxDB measurement telemetry points are written to.
	Measurement string `yaml:"measurement"`
}

// TSDBConfig contains VictoriaMetrics (line protocol over HTTP) settings.
type TSDBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Measurement string `yaml:"measurement"`
	Gzip        bool   `yaml:"gzip"` // compress write bodies
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains dashboard token settings.
// An empty secret leaves the WebSocket endpoint unauthenticated.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// RateLimitConfig is the per-device token bucket applied to HTTP ingress.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

type RouterConfig struct {
	// Strict makes Publish fail with no registered consumers.
	Strict bool `yaml:"strict"`

	// PublishTimeout bounds how long a publisher waits on a full BLOCK channel.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// ConsumersConfig lists the consumers registered at startup.
type ConsumersConfig struct {
	Sinks []SinkConfig `yaml:"sinks"`
	Live  LiveConfig   `yaml:"live"`
}

// SinkConfig describes one storage sink consumer.
type SinkConfig struct {
	ID            string        `yaml:"id"`
	Backend       string        `yaml:"backend"` // influxdb | tsdb
	Capacity      int           `yaml:"capacity"`
	Policy        string        `yaml:"policy"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	Backoff       BackoffConfig `yaml:"backoff"`
}

// BackoffConfig contains sink retry settings.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
	MaxRetries int           `yaml:"max_retries"`
}

// LiveConfig describes the live aggregator consumer.
type LiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ID         string `yaml:"id"`
	Capacity   int    `yaml:"capacity"`
	Policy     string `yaml:"policy"`
	MaxDevices int    `yaml:"max_devices"`
}

type IngressConfig struct {
	HTTP HTTPIngressConfig `yaml:"http"`
	MQTT MQTTIngressConfig `yaml:"mqtt"`
}

// HTTPIngressConfig controls the POST /publish and PUT /telemetry routes.
type HTTPIngressConfig struct {
	Enabled        bool            `yaml:"enabled"`
	MaxPayloadSize int64           `yaml:"max_payload_size"`
	Auth           BasicAuthConfig `yaml:"auth"`
}

type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled"`
	Realm   string          `yaml:"realm"`
	Users   []BasicAuthUser `yaml:"users"`
}

// BasicAuthUser is one ingress credential. PasswordHash is an Argon2id PHC
// string (telemetryd hash-password) or a bcrypt hash.
type BasicAuthUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type MQTTIngressConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TopicPrefix string `yaml:"topic_prefix"`

	// Format is the payload content type assumed for MQTT messages.
	Format string `yaml:"format"`
}

// ReadDuration returns Read as a duration.
func (t APITimeoutConfig) ReadDuration() time.Duration { return seconds(t.Read) }

// WriteDuration returns Write as a duration.
func (t APITimeoutConfig) WriteDuration() time.Duration { return seconds(t.Write) }

// IdleDuration returns Idle as a duration.
func (t APITimeoutConfig) IdleDuration() time.Duration { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
