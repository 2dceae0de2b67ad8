// Package metrics holds the Prometheus collectors of a single run.
// The process is a batch job, so collectors live in a private registry
// that is written once to a textfile when the run ends.
package metrics

import (
	"net/http"
	"time"

	"github.com/naka-gawa/repo-miner/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded during a run.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations        *prometheus.CounterVec
	CommitsCollected   prometheus.Counter
	EvaluationDuration prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
	LastRun            prometheus.Gauge
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repo_miner_evaluations_total",
			Help: "Repositories evaluated, by outcome status",
		}, []string{"status"}),
		CommitsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repo_miner_commits_collected_total",
			Help: "Commits collected from accepted repositories",
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repo_miner_evaluation_duration_seconds",
			Help:    "Time spent evaluating one repository",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repo_miner_github_requests_total",
			Help: "HTTP requests sent to the GitHub API, by status code",
		}, []string{"code"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "repo_miner_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
	m.registry.MustRegister(
		m.Evaluations,
		m.CommitsCollected,
		m.EvaluationDuration,
		m.HTTPRequests,
		m.LastRun,
	)
	return m
}

// ObserveOutcome records a finished evaluation.
func (m *Metrics) ObserveOutcome(o domain.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(string(o.Status)).Inc()
	m.CommitsCollected.Add(float64(len(o.Commits)))
	m.EvaluationDuration.Observe(elapsed.Seconds())
}

// InstrumentRoundTripper counts every request that passes through next.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if m == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperCounter(m.HTTPRequests, next)
}

// WriteTextfile writes all collectors in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	m.LastRun.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, m.registry)
}
