package memsto

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vigil"
	subsystem = "memsto"
)

type Stats struct {
	GaugeCronDuration *prometheus.GaugeVec
	GaugeSyncNumber   *prometheus.GaugeVec
}

func NewSyncStats() *Stats {
	GaugeCronDuration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cron_duration",
		Help:      "Cron method use duration, unit: ms.",
	}, []string{"name"})

	GaugeSyncNumber := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cron_sync_number",
		Help:      "Cron sync number.",
	}, []string{"name"})

	prometheus.MustRegister(
		GaugeCronDuration,
		GaugeSyncNumber,
	)

	return &Stats{
		GaugeCronDuration: GaugeCronDuration,
		GaugeSyncNumber:   GaugeSyncNumber,
	}
}
