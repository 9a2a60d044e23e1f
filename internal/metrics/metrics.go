// Package metrics exposes drive health and service activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nuclearlighters/drivehealth/internal/circuitbreaker"
	"github.com/nuclearlighters/drivehealth/internal/health"
)

const namespace = "drivehealth"

// Metrics holds every collector on a private registry so tests and
// multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts HTTP requests by method, route and status.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration observes HTTP handler latency.
	RequestDuration *prometheus.HistogramVec

	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	AnalysisFailures prometheus.Counter

	Drives          *prometheus.GaugeVec
	Temperature     *prometheus.GaugeVec
	Errors          *prometheus.GaugeVec
	Errors24h       *prometheus.GaugeVec
	SpareCapacity   *prometheus.GaugeVec
	PercentageUsed  *prometheus.GaugeVec
	PowerOnHours    *prometheus.GaugeVec
	DriveStatus     *prometheus.GaugeVec
	LastAnalysis    prometheus.Gauge
	BreakerState    *prometheus.GaugeVec
}

// New creates the collectors and registers them with a fresh registry
// alongside the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	driveLabels := []string{"serial", "device", "type"}

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		AnalysisRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by outcome",
		}, []string{"result"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one analysis run",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		AnalysisFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_log_failures_total",
			Help:      "Device logs that could not be read or decoded",
		}),

		Drives: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drives",
			Help:      "Number of drives by health status",
		}, []string{"status"}),
		Temperature: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_temperature_celsius",
			Help:      "Current drive temperature",
		}, driveLabels),
		Errors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_errors",
			Help:      "Cumulative error counters by kind",
		}, append(driveLabels, "kind")),
		Errors24h: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_errors_24h",
			Help:      "Error counter increase over the last 24 hours by kind",
		}, append(driveLabels, "kind")),
		SpareCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_available_spare_percent",
			Help:      "NVMe available spare capacity",
		}, driveLabels),
		PercentageUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_percentage_used",
			Help:      "NVMe endurance used",
		}, driveLabels),
		PowerOnHours: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_power_on_hours",
			Help:      "Drive power-on hours",
		}, driveLabels),
		DriveStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drive_status",
			Help:      "Drive health status: 0 healthy, 1 warning, 2 critical",
		}, driveLabels),
		LastAnalysis: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_analysis_timestamp_seconds",
			Help:      "Unix time of the last successful analysis",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"name"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records the outcome of one analysis run. Per-drive series are
// reset first so drives that disappeared stop being exported.
func (m *Metrics) ObserveRun(sh health.SystemHealth, failures int, took time.Duration) {
	m.AnalysisRuns.WithLabelValues("success").Inc()
	m.AnalysisDuration.Observe(took.Seconds())
	m.AnalysisFailures.Add(float64(failures))

	m.Drives.WithLabelValues(health.Healthy.String()).Set(float64(sh.HealthyDrives))
	m.Drives.WithLabelValues(health.Warning.String()).Set(float64(sh.WarningDrives))
	m.Drives.WithLabelValues(health.Critical.String()).Set(float64(sh.CriticalDrives))

	for _, vec := range []*prometheus.GaugeVec{m.Temperature, m.Errors, m.Errors24h, m.SpareCapacity, m.PercentageUsed, m.PowerOnHours, m.DriveStatus} {
		vec.Reset()
	}
	for _, d := range sh.Drives {
		labels := prometheus.Labels{"serial": d.Serial, "device": d.DevicePath, "type": d.Family.String()}
		m.DriveStatus.With(labels).Set(float64(health.Classify(d)))
		m.PowerOnHours.With(labels).Set(float64(d.PowerOnHours))
		if d.Temperature.Current != nil {
			m.Temperature.With(labels).Set(*d.Temperature.Current)
		}
		if d.AvailableSparePct != nil {
			m.SpareCapacity.With(labels).Set(*d.AvailableSparePct)
		}
		if d.PercentageUsed != nil {
			m.PercentageUsed.With(labels).Set(*d.PercentageUsed)
		}
		setCounters(m.Errors, labels, d.Total)
		setCounters(m.Errors24h, labels, d.Window)
	}

	if sh.LastUpdated != nil {
		m.LastAnalysis.Set(float64(sh.LastUpdated.Unix()))
	}
}

// ObserveFailedRun records a run that could not list its source.
func (m *Metrics) ObserveFailedRun(took time.Duration) {
	m.AnalysisRuns.WithLabelValues("error").Inc()
	m.AnalysisDuration.Observe(took.Seconds())
}

// BreakerHook returns an OnStateChange callback that exports breaker
// transitions.
func (m *Metrics) BreakerHook() func(name string, from, to circuitbreaker.State) {
	return func(name string, _, to circuitbreaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
	}
}

func setCounters(vec *prometheus.GaugeVec, labels prometheus.Labels, c health.ErrorCounters) {
	kinds := map[string]int64{
		"reallocated":   c.ReallocatedSectors,
		"pending":       c.PendingSectors,
		"uncorrectable": c.UncorrectableSectors,
		"read":          c.ReadErrors,
		"media":         c.MediaErrors,
	}
	for kind, n := range kinds {
		l := prometheus.Labels{"kind": kind}
		for k, v := range labels {
			l[k] = v
		}
		vec.With(l).Set(float64(n))
	}
}
