package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/household-energy-dashboard/internal/household"
)

// RefreshMetrics records refresh cycle outcomes and the shape of the
// published table.
type RefreshMetrics struct {
	cycles         *prometheus.CounterVec
	duration       prometheus.Histogram
	decodeFailures prometheus.Counter
	rows           prometheus.Gauge
	sensors        prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// NewRefreshMetrics creates the collectors and registers them on reg.
func NewRefreshMetrics(reg prometheus.Registerer) *RefreshMetrics {
	m := &RefreshMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "household",
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "household",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent fetching, building and publishing the household table.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "household",
			Name:      "decode_failures_total",
			Help:      "Objects skipped because they were not well-formed records.",
		}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "household",
			Name:      "table_rows",
			Help:      "Rows in the currently published table.",
		}),
		sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "household",
			Name:      "table_sensors",
			Help:      "Distinct sensors in the currently published table.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "household",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last published table.",
		}),
	}

	reg.MustRegister(m.cycles, m.duration, m.decodeFailures, m.rows, m.sensors, m.lastSuccess)
	return m
}

func (m *RefreshMetrics) CycleFinished(result string, elapsed time.Duration) {
	m.cycles.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *RefreshMetrics) DecodeFailures(n int) {
	m.decodeFailures.Add(float64(n))
}

func (m *RefreshMetrics) Published(rows, sensors int, at time.Time) {
	m.rows.Set(float64(rows))
	m.sensors.Set(float64(sensors))
	m.lastSuccess.Set(float64(at.Unix()))
}

var _ household.Recorder = (*RefreshMetrics)(nil)
