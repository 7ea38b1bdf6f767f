package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// minJWTSecretLength applies only when a secret is set; an empty secret
// disables dashboard authentication.
const minJWTSecretLength = 32

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("configuration errors")

// problems collects validation failures so one run reports all of them.
type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		p.add(format, args...)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(p, "; "))
}

// Validate reports every invalid or inconsistent setting at once.
func (c *Config) Validate() error {
	var p problems

	p.check(c.Site.ID != "", "site.id is required")
	p.check(c.Database.Path != "", "database.path is required")
	p.check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	p.check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")

	if s := c.Security.JWT.Secret; s != "" {
		p.check(len(s) >= minJWTSecretLength, "security.jwt.secret must be at least %d characters", minJWTSecretLength)
	}
	if rl := c.Security.RateLimit; rl.Enabled {
		p.check(rl.RequestsPerMinute > 0, "security.rate_limit.requests_per_minute must be positive when enabled")
	}
	p.check(c.Router.PublishTimeout >= 0, "router.publish_timeout must not be negative")

	ids := make(map[string]bool)
	for i, s := range c.Consumers.Sinks {
		c.validateSink(&p, fmt.Sprintf("consumers.sinks[%d]", i), s, ids)
	}
	if live := c.Consumers.Live; live.Enabled {
		validateConsumer(&p, "consumers.live", live.ID, live.Capacity, live.Policy, ids)
	}

	in := c.Ingress
	if in.HTTP.Enabled {
		p.check(in.HTTP.MaxPayloadSize > 0, "ingress.http.max_payload_size must be positive")
	}
	if in.HTTP.Auth.Enabled {
		p.check(len(in.HTTP.Auth.Users) > 0, "ingress.http.auth.users is required when auth is enabled")
	}
	if in.MQTT.Enabled {
		p.check(in.MQTT.TopicPrefix != "", "ingress.mqtt.topic_prefix is required when mqtt ingress is enabled")
	}

	return p.err()
}

func (c *Config) validateSink(p *problems, at string, s SinkConfig, ids map[string]bool) {
	switch s.Backend {
	case "influxdb":
		p.check(c.InfluxDB.Enabled, "%s: backend influxdb requires influxdb.enabled", at)
	case "tsdb":
		p.check(c.TSDB.Enabled, "%s: backend tsdb requires tsdb.enabled", at)
	default:
		p.add("%s.backend must be influxdb or tsdb", at)
	}

	validateConsumer(p, at, s.ID, s.Capacity, s.Policy, ids)

	p.check(s.BatchSize >= 0, "%s.batch_size must not be negative", at)
	if b := s.Backoff; b.Multiplier != 0 {
		p.check(b.Jitter < b.Multiplier-1, "%s.backoff.jitter must be less than multiplier - 1", at)
	}
}

// validateConsumer checks the settings every router registration shares.
// Consumer ids are unique across sinks and the live aggregator.
func validateConsumer(p *problems, at, id string, capacity int, policy string, ids map[string]bool) {
	switch {
	case id == "":
		p.add("%s.id is required", at)
	case ids[id]:
		p.add("%s.id %q is already used", at, id)
	}
	ids[id] = true

	p.check(capacity > 0, "%s.capacity must be positive", at)
	if _, err := router.ParsePolicy(policy); err != nil {
		p.add("%s.policy: %v", at, err)
	}
}
