package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one table
type Metrics struct {
	// Write path metrics
	DeltaCommitsTotal   *prometheus.CounterVec
	DeltaCommitDuration prometheus.Histogram
	RecordsWrittenTotal prometheus.Counter
	LogBytesWritten     prometheus.Counter

	// Timeline metrics
	InstantTransitionsTotal *prometheus.CounterVec
	TimelineLoadDuration    prometheus.Histogram
	PendingCompactions      prometheus.Gauge

	// Compaction metrics
	CompactionsScheduledTotal  prometheus.Counter
	CompactionsCompletedTotal  *prometheus.CounterVec
	CompactionsRecoveredTotal  prometheus.Counter
	CompactionDuration         prometheus.Histogram
	CompactionBytesRead        prometheus.Counter
	CompactionBytesWritten     prometheus.Counter
	CompactionOperations       prometheus.Histogram
	PreconditionFailuresTotal  prometheus.Counter
	CompactionTriggerEvaluated *prometheus.CounterVec

	// View metrics
	ViewBuildDuration  prometheus.Histogram
	ViewAnomaliesTotal prometheus.Counter

	// System metrics
	DiskUsagePercent   prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
}

// NewMetrics creates all metrics for table and registers them on reg
func NewMetrics(reg prometheus.Registerer, table string) *Metrics {
	labels := prometheus.Labels{"table": table}
	factory := promauto.With(reg)

	return &Metrics{
		// Write path metrics
		DeltaCommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "write",
			Name:        "delta_commits_total",
			Help:        "Total number of delta commits by outcome",
			ConstLabels: labels,
		}, []string{"status"}),
		DeltaCommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tablecore",
			Subsystem:   "write",
			Name:        "delta_commit_duration_seconds",
			Help:        "Histogram of write cycle durations, including inline table services",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		RecordsWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "write",
			Name:        "records_total",
			Help:        "Total number of records written to log files",
			ConstLabels: labels,
		}),
		LogBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "write",
			Name:        "log_bytes_total",
			Help:        "Total bytes written to log files",
			ConstLabels: labels,
		}),

		// Timeline metrics
		InstantTransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "timeline",
			Name:        "instant_transitions_total",
			Help:        "Total number of persisted instant states by action and state",
			ConstLabels: labels,
		}, []string{"action", "state"}),
		TimelineLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tablecore",
			Subsystem:   "timeline",
			Name:        "load_duration_seconds",
			Help:        "Histogram of timeline load durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		PendingCompactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tablecore",
			Subsystem:   "timeline",
			Name:        "pending_compactions",
			Help:        "Number of requested or inflight compactions seen by the last load",
			ConstLabels: labels,
		}),

		// Compaction metrics
		CompactionsScheduledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "scheduled_total",
			Help:        "Total number of compaction requests created",
			ConstLabels: labels,
		}),
		CompactionsCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "executions_total",
			Help:        "Total number of compaction executions by outcome",
			ConstLabels: labels,
		}, []string{"status"}),
		CompactionsRecoveredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "recovered_total",
			Help:        "Total number of inflight compactions resumed after a crash",
			ConstLabels: labels,
		}),
		CompactionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "duration_seconds",
			Help:        "Histogram of compaction execution durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		CompactionBytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "bytes_read_total",
			Help:        "Total bytes of base and log files merged",
			ConstLabels: labels,
		}),
		CompactionBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "bytes_written_total",
			Help:        "Total bytes of base files produced",
			ConstLabels: labels,
		}),
		CompactionOperations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "operations",
			Help:        "Histogram of file slices per compaction plan",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PreconditionFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "precondition_failures_total",
			Help:        "Total number of scheduling attempts rejected by a precondition",
			ConstLabels: labels,
		}),
		CompactionTriggerEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "compaction",
			Name:        "trigger_evaluations_total",
			Help:        "Total number of trigger evaluations by strategy and decision",
			ConstLabels: labels,
		}, []string{"strategy", "triggered"}),

		// View metrics
		ViewBuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "tablecore",
			Subsystem:   "view",
			Name:        "build_duration_seconds",
			Help:        "Histogram of file system view build durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ViewAnomaliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablecore",
			Subsystem:   "view",
			Name:        "anomalies_total",
			Help:        "Total number of unparsable data file names seen while building views",
			ConstLabels: labels,
		}),

		// System metrics
		DiskUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tablecore",
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage of the file system holding the table",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tablecore",
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Available bytes on the file system holding the table",
			ConstLabels: labels,
		}),
	}
}

// NewNopMetrics returns metrics registered on a private registry, for tests and tools
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "nop")
}

// RecordDeltaCommit records the outcome of one write cycle
func (m *Metrics) RecordDeltaCommit(status string, duration float64, records int, logBytes int64) {
	m.DeltaCommitsTotal.WithLabelValues(status).Inc()
	m.DeltaCommitDuration.Observe(duration)
	m.RecordsWrittenTotal.Add(float64(records))
	m.LogBytesWritten.Add(float64(logBytes))
}

// RecordTransition records a persisted instant state
func (m *Metrics) RecordTransition(action, state string) {
	m.InstantTransitionsTotal.WithLabelValues(action, state).Inc()
}

// RecordTimelineLoad records a timeline load and the pending compactions it found
func (m *Metrics) RecordTimelineLoad(duration float64, pendingCompactions int) {
	m.TimelineLoadDuration.Observe(duration)
	m.PendingCompactions.Set(float64(pendingCompactions))
}

// RecordTriggerEvaluation records one scheduling decision
func (m *Metrics) RecordTriggerEvaluation(strategy string, triggered bool) {
	decision := "false"
	if triggered {
		decision = "true"
	}
	m.CompactionTriggerEvaluated.WithLabelValues(strategy, decision).Inc()
}

// RecordCompactionScheduled records a new compaction request
func (m *Metrics) RecordCompactionScheduled(operations int) {
	m.CompactionsScheduledTotal.Inc()
	m.CompactionOperations.Observe(float64(operations))
}

// RecordCompaction records a compaction execution
func (m *Metrics) RecordCompaction(status string, duration float64, bytesRead, bytesWritten int64) {
	m.CompactionsCompletedTotal.WithLabelValues(status).Inc()
	m.CompactionDuration.Observe(duration)
	m.CompactionBytesRead.Add(float64(bytesRead))
	m.CompactionBytesWritten.Add(float64(bytesWritten))
}

// RecordViewBuild records a view build and the anomalies it reported
func (m *Metrics) RecordViewBuild(duration float64, anomalies int) {
	m.ViewBuildDuration.Observe(duration)
	m.ViewAnomaliesTotal.Add(float64(anomalies))
}

// UpdateDiskStats updates disk statistics
func (m *Metrics) UpdateDiskStats(usage float64, availableBytes uint64) {
	m.DiskUsagePercent.Set(usage * 100)
	m.DiskAvailableBytes.Set(float64(availableBytes))
}
