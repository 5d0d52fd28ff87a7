package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records reference-data sync runs.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	records  *prometheus.GaugeVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldsync_sync_duration_seconds",
		Help:    "Duration of reference data syncs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_sync_success_total",
		Help: "Successful reference data syncs.",
	}, []string{"mode"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_sync_failure_total",
		Help: "Failed reference data syncs by error code.",
	}, []string{"mode", "code"})
	records := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldsync_sync_records",
		Help: "Rows written by the most recent successful sync.",
	}, []string{"collection"})
	reg.MustRegister(duration, success, failure, records)
	return &SyncMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		records:  records,
	}
}

// ObserveDuration records the duration for the named sync mode.
func (s *SyncMetrics) ObserveDuration(mode string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
}

func (s *SyncMetrics) IncSuccess(mode string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (s *SyncMetrics) IncFailure(mode, code string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(mode), normalizeLabel(code)).Inc()
}

// SetRecords stores the row count written for a collection.
func (s *SyncMetrics) SetRecords(collection string, n int) {
	if s == nil || s.records == nil {
		return
	}
	s.records.WithLabelValues(normalizeLabel(collection)).Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
