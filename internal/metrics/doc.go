// Package metrics exposes the pipeline's Prometheus metrics.
//
// Metrics owns a private registry (plus Go runtime and process
// collectors) and hands out observer adapters for each component:
//
//	m := metrics.New()
//	r := router.New(router.WithObserver(m.RouterObserver()))
//	m.WatchQueues(r.Stats)
//	driver, _ := sink.New(handle, writer, cfg, sink.WithObserver(m.SinkObserver()))
//	http.Handle("/metrics", m.Handler())
//
// Queue depth is not pushed by the router; a collector reads
// Router.Stats at scrape time.
//
// Live aggregator metrics carry no device label: device ids are
// unbounded and would blow up series cardinality.
package metrics
