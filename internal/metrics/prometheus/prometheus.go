// Package prometheus implements metrics.Metrics on top of
// prometheus/client_golang, following the teacher's per-concern metrics
// struct and nil-receiver-is-a-no-op convention
// (pkg/metrics/prometheus/badger.go).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus-backed metrics.Metrics implementation. A nil
// *Metrics is valid and every method becomes a no-op, so callers can wire
// it unconditionally even when metrics are disabled.
type Metrics struct {
	fpduDuration      *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	transferOutcomes  *prometheus.CounterVec
	activeSessions    *prometheus.GaugeVec
	clusterLeadership prometheus.Gauge
}

// New registers the PeSIT metric families on reg and returns the
// implementation. Pass a nil *prometheus.Registry to get a nil *Metrics
// back (metrics disabled, zero overhead).
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		fpduDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pesitd_fpdu_handle_duration_seconds",
				Help:    "Time to handle one FPDU, by kind and listener.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "server_id"},
		),
		transferBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pesitd_transfer_bytes_total",
				Help: "Total bytes moved, by listener and direction.",
			},
			[]string{"server_id", "direction"},
		),
		transferOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pesitd_transfer_outcomes_total",
				Help: "Total transfers reaching a terminal status, by listener and outcome.",
			},
			[]string{"server_id", "status"},
		),
		activeSessions: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pesitd_active_sessions",
				Help: "Current number of active sessions, by server id.",
			},
			[]string{"server_id"},
		),
		clusterLeadership: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "pesitd_cluster_is_leader",
				Help: "1 if this node currently holds cluster leadership, else 0.",
			},
		),
	}
}

func (m *Metrics) RecordFPDU(kind, serverID string, dur time.Duration) {
	if m == nil {
		return
	}
	m.fpduDuration.WithLabelValues(kind, serverID).Observe(dur.Seconds())
}

func (m *Metrics) RecordTransferBytes(serverID, direction string, n int64) {
	if m == nil {
		return
	}
	m.transferBytes.WithLabelValues(serverID, direction).Add(float64(n))
}

func (m *Metrics) SetActiveSessions(serverID string, n int32) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(serverID).Set(float64(n))
}

func (m *Metrics) RecordTransferOutcome(serverID, status string) {
	if m == nil {
		return
	}
	m.transferOutcomes.WithLabelValues(serverID, status).Inc()
}

func (m *Metrics) RecordClusterLeadership(isLeader bool) {
	if m == nil {
		return
	}
	if isLeader {
		m.clusterLeadership.Set(1)
	} else {
		m.clusterLeadership.Set(0)
	}
}
