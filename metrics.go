package bootstrap

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "bootstrap"

// lifecycleMetrics is nil-safe; a nil value records nothing.
type lifecycleMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	phase    prometheus.Gauge
}

func newLifecycleMetrics(reg prometheus.Registerer) (*lifecycleMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &lifecycleMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "service_operation_duration_seconds",
			Help:      "Duration of infrastructure service start and stop operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "service_operation_failures_total",
			Help:      "Failed infrastructure service start and stop operations.",
		}, []string{"service", "operation"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "phase",
			Help:      "Current configuration phase index (0=infrastructure .. 4=started).",
		}),
	}

	for _, c := range []prometheus.Collector{m.duration, m.failures, m.phase} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register lifecycle metrics: %w", err)
		}
	}
	return m, nil
}

func (m *lifecycleMetrics) observe(service string, op serviceOperation, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		m.failures.WithLabelValues(service, string(op)).Inc()
	}
	m.duration.WithLabelValues(service, string(op), outcome).Observe(time.Since(started).Seconds())
}

func (m *lifecycleMetrics) setPhase(p Phase) {
	if m == nil {
		return
	}
	m.phase.Set(float64(p.Index()))
}
