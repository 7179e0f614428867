package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/rules"
)

const namespace = "campaignrules"

// Metrics contains the Prometheus collectors of the service
type Metrics struct {
	registry *prometheus.Registry

	evaluations        *prometheus.CounterVec
	evaluationFailures *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	batchSize          prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_errors_total",
		Help:      "Error-level log calls, counted before sampling",
	}, func() float64 { return float64(logger.TotalErrors.Load()) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_warnings_total",
		Help:      "Warning-level log calls, counted before sampling",
	}, func() float64 { return float64(logger.TotalWarnings.Load()) })

	return &Metrics{
		registry: reg,

		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Campaign evaluations by triggered rule and resulting status",
			},
			[]string{"rule", "status", "dry_run"},
		),

		evaluationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_failures_total",
				Help:      "Campaign evaluations that failed, by stage",
			},
			[]string{"stage"},
		),

		evaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time spent evaluating a single campaign including persistence",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),

		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_campaigns",
				Help:      "Managed campaigns evaluated per batch run",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"method", "route", "status"},
		),

		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveEvaluation records one finished evaluation. An empty rule means
// no rule fired.
func (m *Metrics) ObserveEvaluation(rule string, status rules.Status, dryRun bool, elapsed time.Duration) {
	if rule == "" {
		rule = "none"
	}
	m.evaluations.WithLabelValues(rule, string(status), strconv.FormatBool(dryRun)).Inc()
	m.evaluationDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records an evaluation that failed at the given stage
// (load, rules, audit, persist)
func (m *Metrics) ObserveFailure(stage string) {
	m.evaluationFailures.WithLabelValues(stage).Inc()
}

// ObserveBatch records the size of a batch run
func (m *Metrics) ObserveBatch(campaigns int) {
	m.batchSize.Observe(float64(campaigns))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by their chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
