package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// StatsFunc returns the current consumer set. Router.Stats satisfies it.
type StatsFunc func() []router.ConsumerStats

var (
	queueDepthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "channel", "depth"),
		"Events buffered in a consumer's delivery channel.",
		[]string{"consumer", "policy"}, nil,
	)
	queueCapacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "channel", "capacity"),
		"Capacity of a consumer's delivery channel.",
		[]string{"consumer", "policy"}, nil,
	)
	queueEnqueuedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "channel", "enqueued_total"),
		"Events ever enqueued on a consumer's delivery channel.",
		[]string{"consumer", "policy"}, nil,
	)
	queueDroppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(Namespace, "channel", "dropped_total"),
		"Events a consumer's delivery channel discarded on overflow.",
		[]string{"consumer", "policy"}, nil,
	)
)

// queueCollector reads channel statistics at scrape time.
type queueCollector struct {
	stats StatsFunc
}

func (c queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueDepthDesc
	ch <- queueCapacityDesc
	ch <- queueEnqueuedDesc
	ch <- queueDroppedDesc
}

func (c queueCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.stats() {
		ch <- prometheus.MustNewConstMetric(queueDepthDesc, prometheus.GaugeValue, float64(s.Depth), s.ID, s.Policy)
		ch <- prometheus.MustNewConstMetric(queueCapacityDesc, prometheus.GaugeValue, float64(s.Capacity), s.ID, s.Policy)
		ch <- prometheus.MustNewConstMetric(queueEnqueuedDesc, prometheus.CounterValue, float64(s.Enqueued), s.ID, s.Policy)
		ch <- prometheus.MustNewConstMetric(queueDroppedDesc, prometheus.CounterValue, float64(s.Dropped), s.ID, s.Policy)
	}
}

// WatchQueues registers a collector reporting per-consumer channel depth,
// capacity and counters from stats.
func (m *Metrics) WatchQueues(stats StatsFunc) error {
	return m.registry.Register(queueCollector{stats: stats})
}
