package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherfusion_source_fetches_total",
			Help: "Per-source fetch outcomes (ok, no_data, error)",
		},
		[]string{"source", "site", "outcome"},
	)

	SourceFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherfusion_source_fetch_latency_seconds",
			Help:    "Wall time per (source, site) fetch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherfusion_records_ingested_total",
			Help: "Source daily records accepted into the ensemble input",
		},
		[]string{"source"},
	)

	CacheFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherfusion_cache_fetches_total",
			Help: "TTL cache lookups by namespace and result (hit, miss)",
		},
		[]string{"namespace", "result"},
	)
)

// WriteTextfile dumps the default registry to path in the node_exporter
// textfile format, so one-shot runs still leave metrics behind.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
