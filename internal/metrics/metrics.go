// Package metrics records run, task and provider counters on a private
// Prometheus registry.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

const namespace = "feedrefiner"

// Metrics implements the observer hooks of the scheduler and the cascade.
type Metrics struct {
	registry         *prometheus.Registry
	runs             *prometheus.CounterVec
	tasks            *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	articlesStored   prometheus.Counter
	runDuration      prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by result.",
		}, []string{"result"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Selected feed tasks by outcome.",
		}, []string{"outcome"}),
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Refinement provider attempts by provider and result.",
		}, []string{"provider", "result"}),
		articlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_stored_total",
			Help:      "Articles persisted to the store.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a run.",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480, 600},
		}),
	}
	m.registry.MustRegister(m.runs, m.tasks, m.providerAttempts, m.articlesStored, m.runDuration)
	return m
}

// ProviderAttempt counts one provider call.
func (m *Metrics) ProviderAttempt(provider, result string) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, result).Inc()
}

// TaskFinished counts one selected task.
func (m *Metrics) TaskFinished(outcome domain.TaskOutcome) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(string(outcome)).Inc()
	if outcome == domain.OutcomeStored {
		m.articlesStored.Inc()
	}
}

// RunFinished records the run result ("ok" or "error") and its duration.
func (m *Metrics) RunFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
