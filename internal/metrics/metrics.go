package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-telemetry/internal/ingress"
	"github.com/nerrad567/gray-logic-telemetry/internal/live"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
	"github.com/nerrad567/gray-logic-telemetry/internal/sink"
)

// Namespace prefixes every metric name.
const Namespace = "telemetry"

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	eventsPublished     prometheus.Counter
	fanout              prometheus.Histogram
	eventsDropped       *prometheus.CounterVec
	consumerDisconnects *prometheus.CounterVec
	publishTimeouts     *prometheus.CounterVec

	batchesWritten   *prometheus.CounterVec
	eventsWritten    *prometheus.CounterVec
	writeLatency     *prometheus.HistogramVec
	batchRetries     *prometheus.CounterVec
	batchesDropped   *prometheus.CounterVec
	eventsLost       *prometheus.CounterVec
	consumerFailures *prometheus.CounterVec

	liveApplied prometheus.Counter
	liveStale   prometheus.Counter
	liveEvicted prometheus.Counter

	ingressAccepted *prometheus.CounterVec
	ingressRejected *prometheus.CounterVec
}

// New creates the metrics and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "router", Name: "events_published_total",
			Help: "Events accepted by the router.",
		}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "router", Name: "fanout_consumers",
			Help:    "Number of consumers each event was offered to.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 16},
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "router", Name: "events_dropped_total",
			Help: "Events lost to an overflow policy.",
		}, []string{"consumer", "policy"}),
		consumerDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "router", Name: "consumer_disconnects_total",
			Help: "Consumers forcibly unregistered.",
		}, []string{"consumer"}),
		publishTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "router", Name: "publish_timeouts_total",
			Help: "Block waits that expired before space was available.",
		}, []string{"consumer"}),

		batchesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "batches_written_total",
			Help: "Batches stored successfully.",
		}, []string{"consumer"}),
		eventsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "events_written_total",
			Help: "Events stored successfully.",
		}, []string{"consumer"}),
		writeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "write_duration_seconds",
			Help:    "Duration of successful batch writes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"consumer"}),
		batchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "batch_retries_total",
			Help: "Transient write failures scheduled for retry.",
		}, []string{"consumer"}),
		batchesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "batches_dropped_total",
			Help: "Batches discarded after a permanent or final failure.",
		}, []string{"consumer"}),
		eventsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "events_dropped_total",
			Help: "Events in discarded batches.",
		}, []string{"consumer"}),
		consumerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "sink", Name: "consumer_failures_total",
			Help: "Sink drivers that exhausted their retries and disconnected.",
		}, []string{"consumer"}),

		liveApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "live", Name: "events_applied_total",
			Help: "Events applied to the live state.",
		}),
		liveStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "live", Name: "events_stale_total",
			Help: "Events older than the stored state, discarded.",
		}),
		liveEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "live", Name: "devices_evicted_total",
			Help: "Devices evicted from the live state to respect max_devices.",
		}),

		ingressAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "ingress", Name: "events_accepted_total",
			Help: "Events published by an ingress adapter.",
		}, []string{"adapter"}),
		ingressRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "ingress", Name: "events_rejected_total",
			Help: "Requests or messages an ingress adapter refused.",
		}, []string{"adapter", "reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsPublished, m.fanout, m.eventsDropped, m.consumerDisconnects, m.publishTimeouts,
		m.batchesWritten, m.eventsWritten, m.writeLatency, m.batchRetries,
		m.batchesDropped, m.eventsLost, m.consumerFailures,
		m.liveApplied, m.liveStale, m.liveEvicted,
		m.ingressAccepted, m.ingressRejected,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RouterObserver returns hooks for router.WithObserver.
func (m *Metrics) RouterObserver() router.Observer { return routerObserver{m} }

// SinkObserver returns hooks for sink.WithObserver.
func (m *Metrics) SinkObserver() sink.Observer { return sinkObserver{m} }

// LiveObserver returns hooks for live.WithObserver.
func (m *Metrics) LiveObserver() live.Observer { return liveObserver{m} }

// IngressObserver returns hooks for the ingress adapters.
func (m *Metrics) IngressObserver() ingress.Observer { return ingressObserver{m} }

type routerObserver struct{ m *Metrics }

func (o routerObserver) EventPublished(consumers int) {
	o.m.eventsPublished.Inc()
	o.m.fanout.Observe(float64(consumers))
}

func (o routerObserver) EventDropped(consumerID string, policy router.OverflowPolicy) {
	o.m.eventsDropped.WithLabelValues(consumerID, policy.String()).Inc()
}

func (o routerObserver) ConsumerDisconnected(consumerID string) {
	o.m.consumerDisconnects.WithLabelValues(consumerID).Inc()
}

func (o routerObserver) PublishTimedOut(consumerID string) {
	o.m.publishTimeouts.WithLabelValues(consumerID).Inc()
}

type sinkObserver struct{ m *Metrics }

func (o sinkObserver) BatchWritten(consumerID string, size int, latency time.Duration) {
	o.m.batchesWritten.WithLabelValues(consumerID).Inc()
	o.m.eventsWritten.WithLabelValues(consumerID).Add(float64(size))
	o.m.writeLatency.WithLabelValues(consumerID).Observe(latency.Seconds())
}

func (o sinkObserver) BatchRetried(consumerID string, _ int, _ time.Duration) {
	o.m.batchRetries.WithLabelValues(consumerID).Inc()
}

func (o sinkObserver) BatchDropped(consumerID string, size int, _ error) {
	o.m.batchesDropped.WithLabelValues(consumerID).Inc()
	o.m.eventsLost.WithLabelValues(consumerID).Add(float64(size))
}

func (o sinkObserver) ConsumerFailed(consumerID string, _ error) {
	o.m.consumerFailures.WithLabelValues(consumerID).Inc()
}

type liveObserver struct{ m *Metrics }

func (o liveObserver) EventApplied(string, string)   { o.m.liveApplied.Inc() }
func (o liveObserver) StaleDiscarded(string, string) { o.m.liveStale.Inc() }
func (o liveObserver) DeviceEvicted(string)          { o.m.liveEvicted.Inc() }

type ingressObserver struct{ m *Metrics }

func (o ingressObserver) Accepted(adapter string) {
	o.m.ingressAccepted.WithLabelValues(adapter).Inc()
}

func (o ingressObserver) Rejected(adapter, reason string) {
	o.m.ingressRejected.WithLabelValues(adapter, reason).Inc()
}
