package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine and
// its HTTP surface. All methods are nil-safe so the batch binary can run
// without metrics wired up.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	iterationsTotal prometheus.Counter
	iterationScore  prometheus.Gauge
	solveDuration   *prometheus.HistogramVec
	actionsTotal    *prometheus.CounterVec
	oracleFailures  prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimization_runs_total",
		Help: "Completed optimization runs by terminal status",
	}, []string{"status"})

	iterationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optimization_iterations_total",
		Help: "Total optimization iterations executed",
	})

	iterationScore := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "optimization_last_iteration_score",
		Help: "Score of the most recent iteration, lower is better",
	})

	solveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_duration_seconds",
		Help:    "Wall-clock duration of solver invocations",
		Buckets: []float64{1, 10, 60, 300, 1800, 7200, 25200},
	}, []string{"outcome"})

	actionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_actions_total",
		Help: "Registrar actions by type and result",
	}, []string{"type", "result"})

	oracleFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_failures_total",
		Help: "Decision oracle calls that failed and triggered fallback",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, runsTotal, iterationsTotal,
		iterationScore, solveDuration, actionsTotal, oracleFailures, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runsTotal:       runsTotal,
		iterationsTotal: iterationsTotal,
		iterationScore:  iterationScore,
		solveDuration:   solveDuration,
		actionsTotal:    actionsTotal,
		oracleFailures:  oracleFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveRun records a terminal run status.
func (m *MetricsService) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// ObserveIteration records one loop pass and its score.
func (m *MetricsService) ObserveIteration(score float64) {
	if m == nil {
		return
	}
	m.iterationsTotal.Inc()
	m.iterationScore.Set(score)
}

// ObserveSolve records solver runtime by outcome.
func (m *MetricsService) ObserveSolve(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveAction records a processed action.
func (m *MetricsService) ObserveAction(actionType, result string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(actionType, result).Inc()
}

// ObserveOracleFailure counts a failed oracle call.
func (m *MetricsService) ObserveOracleFailure() {
	if m == nil {
		return
	}
	m.oracleFailures.Inc()
}
