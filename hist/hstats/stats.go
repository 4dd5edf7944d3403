package hstats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vigil"
	subsystem = "hist"
)

type Stats struct {
	CounterSamplesTotal   *prometheus.CounterVec
	CounterSamplesDropped *prometheus.CounterVec
	CounterTriggersTotal  *prometheus.CounterVec
	CounterTrendExports   prometheus.Counter
	CounterCommitRetries  prometheus.Counter
	GaugeQueueSize        *prometheus.GaugeVec
	GaugeSyncDuration     *prometheus.GaugeVec
}

func NewSyncStats() *Stats {
	CounterSamplesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "samples_total",
		Help:      "Number of samples processed by the sync loop.",
	}, []string{"shard"})

	CounterSamplesDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "samples_dropped_total",
		Help:      "Number of samples rejected at the queue or by normalization.",
	}, []string{"reason"})

	CounterTriggersTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "triggers_total",
		Help:      "Number of triggers recalculated.",
	}, []string{"shard"})

	CounterTrendExports := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trend_exports_total",
		Help:      "Number of hourly trend records exported.",
	})

	CounterCommitRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commit_retries_total",
		Help:      "Number of transaction commits retried on transient failures.",
	})

	GaugeQueueSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "queue_size",
		Help:      "The size of the per-shard sample queue.",
	}, []string{"shard"})

	GaugeSyncDuration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sync_duration",
		Help:      "Duration of the last Sync call, unit: ms.",
	}, []string{"shard"})

	prometheus.MustRegister(
		CounterSamplesTotal,
		CounterSamplesDropped,
		CounterTriggersTotal,
		CounterTrendExports,
		CounterCommitRetries,
		GaugeQueueSize,
		GaugeSyncDuration,
	)

	return &Stats{
		CounterSamplesTotal:   CounterSamplesTotal,
		CounterSamplesDropped: CounterSamplesDropped,
		CounterTriggersTotal:  CounterTriggersTotal,
		CounterTrendExports:   CounterTrendExports,
		CounterCommitRetries:  CounterCommitRetries,
		GaugeQueueSize:        GaugeQueueSize,
		GaugeSyncDuration:     GaugeSyncDuration,
	}
}
