// Package prometheus provides the Prometheus implementation of the metrics
// interfaces defined in pkg/metrics. Importing it (usually blank, from main)
// registers the constructors with the parent package.
package prometheus

import (
	"time"

	"github.com/marmos91/tracegc/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// collectorMetrics is the Prometheus implementation of
// metrics.CollectorMetrics.
type collectorMetrics struct {
	collections       *prometheus.CounterVec
	skipped           prometheus.Counter
	markDuration      prometheus.Histogram
	markObjects       prometheus.Histogram
	gatherDuration    prometheus.Histogram
	unreachableTotal  prometheus.Counter
	clusterMembers    prometheus.Counter
	purgeTickDuration prometheus.Histogram
	destroyedTotal    prometheus.Counter
	purgeBacklog      prometheus.Gauge
	clustersDissolved prometheus.Counter
}

func init() {
	metrics.RegisterCollectorMetricsConstructor(newCollectorMetrics)
}

func newCollectorMetrics() metrics.CollectorMetrics {
	reg := metrics.GetRegistry()

	return &collectorMetrics{
		collections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracegc_collections_total",
				Help: "Total number of completed collection cycles by purge mode",
			},
			[]string{"purge"}, // "full", "incremental"
		),
		skipped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracegc_collections_skipped_total",
				Help: "Collection attempts skipped because the GC lock was contended",
			},
		),
		markDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracegc_mark_duration_milliseconds",
				Help:    "Duration of the mark phase in milliseconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		markObjects: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracegc_mark_objects",
				Help:    "Objects considered per mark phase",
				Buckets: prometheus.ExponentialBuckets(100, 4, 10),
			},
		),
		gatherDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracegc_gather_duration_milliseconds",
				Help:    "Duration of the unreachable-gather phase in milliseconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		unreachableTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracegc_unreachable_objects_total",
				Help: "Total unreachable objects gathered",
			},
		),
		clusterMembers: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracegc_unreachable_cluster_members_total",
				Help: "Unreachable objects contributed by dissolved clusters",
			},
		),
		purgeTickDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracegc_purge_tick_duration_milliseconds",
				Help:    "Duration of one incremental purge slice in milliseconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		destroyedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracegc_objects_destroyed_total",
				Help: "Objects physically freed by the purge phase",
			},
		),
		purgeBacklog: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tracegc_purge_backlog",
				Help: "Objects still awaiting destruction",
			},
		),
		clustersDissolved: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tracegc_clusters_dissolved_total",
				Help: "Clusters dissolved because their root or a member became garbage",
			},
		),
	}
}

func (m *collectorMetrics) IncCollections(full bool) {
	mode := "incremental"
	if full {
		mode = "full"
	}
	m.collections.WithLabelValues(mode).Inc()
}

func (m *collectorMetrics) IncSkipped() {
	m.skipped.Inc()
}

func (m *collectorMetrics) ObserveMarkPhase(objects int, duration time.Duration) {
	m.markObjects.Observe(float64(objects))
	m.markDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *collectorMetrics) ObserveGatherPhase(unreachable, clusterMembers int, duration time.Duration) {
	m.unreachableTotal.Add(float64(unreachable))
	m.clusterMembers.Add(float64(clusterMembers))
	m.gatherDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *collectorMetrics) ObservePurgeTick(destroyed int, duration time.Duration) {
	m.destroyedTotal.Add(float64(destroyed))
	m.purgeTickDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *collectorMetrics) SetPurgeBacklog(pending int) {
	m.purgeBacklog.Set(float64(pending))
}

func (m *collectorMetrics) AddClustersDissolved(n int) {
	m.clustersDissolved.Add(float64(n))
}
