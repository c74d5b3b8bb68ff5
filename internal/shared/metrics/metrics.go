package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Credit ledger metrics
	ReservationsTotal    *prometheus.CounterVec
	CreditsReservedTotal prometheus.Counter

	// Usage recorder metrics
	UsageRecordsDroppedTotal prometheus.Counter

	// File lifecycle metrics
	FilesReapedTotal  prometheus.Counter
	ReapFailuresTotal prometheus.Counter
	SweepDuration     prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "convertly"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ReservationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credits",
				Name:      "reservations_total",
				Help:      "Credit reservations by result and breached limit",
			},
			[]string{"result", "limit"},
		),
		CreditsReservedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credits",
				Name:      "reserved_total",
				Help:      "Total credits successfully reserved",
			},
		),
		UsageRecordsDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "records_dropped_total",
				Help:      "Usage records dropped because the buffer was full",
			},
		),
		FilesReapedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "files_reaped_total",
				Help:      "Expired files deleted by the reaper",
			},
		),
		ReapFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "failures_total",
				Help:      "Files the reaper failed to delete this cycle",
			},
		),
		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of reaper sweeps",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60},
			},
		),
	}
}

// RecordHTTPRequest records metrics for a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordReservation records the outcome of a credit reservation.
// limit is the breached limit kind ("daily" or "monthly") for denials,
// empty for grants.
func (m *Metrics) RecordReservation(allowed bool, limit string, credits int64) {
	result := "granted"
	if !allowed {
		result = "denied"
	} else {
		limit = ""
	}
	m.ReservationsTotal.WithLabelValues(result, limit).Inc()
	if allowed {
		m.CreditsReservedTotal.Add(float64(credits))
	}
}
