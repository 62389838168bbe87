package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation kinds used as the "operation" label.
const (
	OpImport   = "import"
	OpRollback = "rollback"
)

// ImportMetrics records import and rollback outcomes.
type ImportMetrics interface {
	IncStarted(operation string)
	IncFinished(operation, status string)
	ObserveDuration(operation string, durationSeconds float64)
	IncValidationFailure(code string)
}

// Noop implements ImportMetrics without emitting anything.
type Noop struct{}

func (Noop) IncStarted(string)               {}
func (Noop) IncFinished(string, string)      {}
func (Noop) ObserveDuration(string, float64) {}
func (Noop) IncValidationFailure(string)     {}

// Prom implements ImportMetrics backed by Prometheus collectors.
type Prom struct {
	started    *prometheus.CounterVec
	finished   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	validation *prometheus.CounterVec
	once       sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_jobs_started_total",
			Help:      "Module jobs started by operation",
		}, []string{"operation"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_jobs_finished_total",
			Help:      "Module jobs finished by operation and terminal status",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "module_job_duration_seconds",
			Help:      "Module job duration by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_validation_failures_total",
			Help:      "Rejected archives by validation code",
		}, []string{"code"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.started, p.finished, p.duration, p.validation)
	})
}

func (p *Prom) IncStarted(operation string) {
	p.started.WithLabelValues(operation).Inc()
}

func (p *Prom) IncFinished(operation, status string) {
	p.finished.WithLabelValues(operation, status).Inc()
}

func (p *Prom) ObserveDuration(operation string, durationSeconds float64) {
	p.duration.WithLabelValues(operation).Observe(durationSeconds)
}

func (p *Prom) IncValidationFailure(code string) {
	p.validation.WithLabelValues(code).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
