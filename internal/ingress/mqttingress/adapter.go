package mqttingress

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-telemetry/internal/clock"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingress"
)

// AdapterName labels this adapter in ingress metrics.
const AdapterName = "mqtt"

// Subscriber is the broker capability the adapter needs.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the Adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds adapter settings.
type Config struct {
	Topics mqtt.Topics
	// Format is the content type every message body is decoded as.
	Format string
	QoS    byte
}

// Adapter turns MQTT telemetry messages into router events.
type Adapter struct {
	sub     Subscriber
	pub     ingress.Publisher
	cfg     Config
	stamper *ingress.Stamper

	observer ingress.Observer
	logger   Logger
	clock    clock.Clock

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithObserver installs ingress metric hooks.
func WithObserver(o ingress.Observer) Option { return func(a *Adapter) { a.observer = o } }

// WithLogger sets the adapter logger.
func WithLogger(l Logger) Option { return func(a *Adapter) { a.logger = l } }

// WithClock sets the clock used to stamp messages.
func WithClock(c clock.Clock) Option { return func(a *Adapter) { a.clock = c } }

// New creates an adapter. Nothing is subscribed until Start.
func New(sub Subscriber, pub ingress.Publisher, cfg Config, opts ...Option) *Adapter {
	if cfg.Format == "" {
		cfg.Format = ingress.ContentTypeJSON
	}
	a := &Adapter{
		sub:      sub,
		pub:      pub,
		cfg:      cfg,
		observer: ingress.NopObserver{},
		logger:   noopLogger{},
		clock:    clock.Real(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.stamper = ingress.NewStamper(a.clock, ingress.DefaultStamperKeys)
	return a
}

// Start subscribes to the telemetry tree. ctx bounds every publish made
// for received messages; cancelling it makes in-flight BLOCK waits give up.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return ErrAlreadyStarted
	}

	a.ctx = ctx
	topic := a.cfg.Topics.AllTelemetry()
	if err := a.sub.Subscribe(topic, a.cfg.QoS, a.handle); err != nil {
		return fmt.Errorf("subscribing %s: %w", topic, err)
	}
	a.started = true
	a.logger.Info("mqtt ingress started", "topic", topic, "format", a.cfg.Format)
	return nil
}

// Stop unsubscribes from the telemetry tree.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return ErrNotStarted
	}
	a.started = false
	if err := a.sub.Unsubscribe(a.cfg.Topics.AllTelemetry()); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	a.logger.Info("mqtt ingress stopped")
	return nil
}

// handle is the subscription callback.
func (a *Adapter) handle(topic string, payload []byte) error {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return a.HandleMessage(ctx, topic, payload)
}

// HandleMessage decodes and publishes one message.
//
// Parameters:
//   - ctx: Bounds the publish
//   - topic: The concrete topic the message arrived on
//   - payload: The raw message body
//
// Returns:
//   - error: ErrInvalidTopic, a decode error, or the router's publish error
func (a *Adapter) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	deviceID, channel, ok := a.cfg.Topics.ParseTelemetry(topic)
	if !ok {
		a.observer.Rejected(AdapterName, ingress.ReasonTopic)
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	fields, err := ingress.DecodePayload(a.cfg.Format, payload)
	if err != nil {
		a.observer.Rejected(AdapterName, ingress.Reason(err))
		return fmt.Errorf("device %s channel %s: %w", deviceID, channel, err)
	}

	key := event.Key{DeviceID: deviceID, Channel: channel}
	ev := event.Event{
		DeviceID:  deviceID,
		Channel:   channel,
		Timestamp: a.stamper.Stamp(key, a.clock.Now()),
		Payload:   fields,
	}

	res, err := a.pub.Publish(ctx, ev)
	if err != nil {
		a.observer.Rejected(AdapterName, ingress.Reason(err))
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	a.observer.Accepted(AdapterName)
	if len(res.Dropped) > 0 || len(res.Disconnected) > 0 {
		a.logger.Debug("mqtt event not delivered to every consumer", "key", key.String(),
			"dropped", res.Dropped, "disconnected", res.Disconnected)
	}
	return nil
}
