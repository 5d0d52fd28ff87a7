package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransmitMetrics records order batch transmissions.
type TransmitMetrics struct {
	duration prometheus.Histogram
	orders   *prometheus.CounterVec
}

func NewTransmitMetrics(reg prometheus.Registerer) *TransmitMetrics {
	if reg == nil {
		return &TransmitMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldsync_transmit_duration_seconds",
		Help:    "Duration of order batch transmissions in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_transmit_orders_total",
		Help: "Orders processed by transmission, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, orders)
	return &TransmitMetrics{duration: duration, orders: orders}
}

func (t *TransmitMetrics) ObserveDuration(d time.Duration) {
	if t == nil || t.duration == nil {
		return
	}
	t.duration.Observe(d.Seconds())
}

// AddOrders increments the outcome counter by n.
func (t *TransmitMetrics) AddOrders(outcome string, n int) {
	if t == nil || t.orders == nil || n <= 0 {
		return
	}
	t.orders.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}
