// Package metrics provides the Prometheus collectors of SnapNEarn.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// Outcome labels.
const (
	OutcomeOK                = "ok"
	OutcomeValidation        = "validation"
	OutcomeInvalidTransition = "invalid_transition"
	OutcomeInvalidState      = "invalid_state"
	OutcomeNotFound          = "not_found"
	OutcomeConflict          = "conflict"
	OutcomeError             = "error"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	riskScores        prometheus.Histogram
	recommendations   *prometheus.CounterVec
	rewardsCredited   prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	workerJobs        *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapnearn_operations_total",
		Help: "Lifecycle and dispute operations by outcome",
	}, []string{"entity", "op", "outcome"})

	m.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapnearn_operation_duration_seconds",
		Help:    "Duration of lifecycle and dispute operations including store round trips",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"entity", "op"})

	m.riskScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapnearn_risk_score",
		Help:    "Distribution of fraud risk scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	m.recommendations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapnearn_risk_recommendations_total",
		Help: "Fraud risk recommendations issued",
	}, []string{"recommendation"})

	m.rewardsCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapnearn_rewards_credited_rupees_total",
		Help: "Sum of reporter rewards attached to challans",
	})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapnearn_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status_code"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapnearn_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.workerJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapnearn_worker_jobs_total",
		Help: "Background analysis jobs by topic and outcome",
	}, []string{"topic", "outcome"})

	m.publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapnearn_publish_failures_total",
		Help: "Event bus publish failures by topic",
	}, []string{"topic"})

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations,
		m.operationDuration,
		m.riskScores,
		m.recommendations,
		m.rewardsCredited,
		m.httpRequests,
		m.httpDuration,
		m.workerJobs,
		m.publishFailures,
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Outcome classifies an operation error into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, domain.ErrInvalidTransition):
		return OutcomeInvalidTransition
	case errors.Is(err, domain.ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}

// ObserveOperation records one lifecycle or dispute operation.
func (m *Metrics) ObserveOperation(entity, op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(entity, op, Outcome(err)).Inc()
	m.operationDuration.WithLabelValues(entity, op).Observe(d.Seconds())
}

// ObserveAssessment records a fraud risk assessment.
func (m *Metrics) ObserveAssessment(a *domain.Assessment) {
	if m == nil || a == nil {
		return
	}
	m.riskScores.Observe(float64(a.OverallScore))
	m.recommendations.WithLabelValues(string(a.Recommendation)).Inc()
}

// AddReward adds a credited reward amount.
func (m *Metrics) AddReward(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.rewardsCredited.Add(float64(amount))
}

// ObserveHTTP records one served request. route is the chi route
// pattern, never the raw path, to keep cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// WorkerJob records a background job result.
func (m *Metrics) WorkerJob(topic string, err error) {
	if m == nil {
		return
	}
	m.workerJobs.WithLabelValues(topic, Outcome(err)).Inc()
}

// PublishFailed counts a failed event publish.
func (m *Metrics) PublishFailed(topic string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(topic).Inc()
}
