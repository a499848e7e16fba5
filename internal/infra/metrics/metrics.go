package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// Engine holds the collectors of the trust and visibility engine. A nil *Engine
// is valid and records nothing.
type Engine struct {
	RateDecisions        *prometheus.CounterVec
	ContentFindings      *prometheus.CounterVec
	Lockouts             prometheus.Counter
	ReporterFlags        prometheus.Counter
	VisibilityExclusions *prometheus.CounterVec
	StoreFailures        *prometheus.CounterVec
	Requests             *prometheus.CounterVec
	Duration             *prometheus.HistogramVec
}

func New(opts Options) (*Engine, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "marketplace"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	var (
		m   Engine
		err error
	)

	if m.RateDecisions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate",
		Name:      "decisions_total",
		Help:      "Rate limit decisions partitioned by action, outcome and tier.",
	}, []string{"action", "outcome", "tier"})); err != nil {
		return nil, err
	}
	if m.ContentFindings, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "abuse",
		Name:      "findings_total",
		Help:      "Content rules triggered partitioned by rule and severity.",
	}, []string{"rule", "severity"})); err != nil {
		return nil, err
	}
	if m.Lockouts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trust",
		Name:      "lockouts_total",
		Help:      "Lockouts applied.",
	})); err != nil {
		return nil, err
	}
	if m.ReporterFlags, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trust",
		Name:      "reporter_flags_total",
		Help:      "Serial reporter flags raised.",
	})); err != nil {
		return nil, err
	}
	if m.VisibilityExclusions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "visibility",
		Name:      "exclusions_total",
		Help:      "Entities excluded by the visibility gate partitioned by failed condition.",
	}, []string{"condition"})); err != nil {
		return nil, err
	}
	if m.StoreFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "failures_total",
		Help:      "Store failures partitioned by component and the policy applied.",
	}, []string{"component", "policy"})); err != nil {
		return nil, err
	}
	if m.Requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if m.Duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   buckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}

	return &m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *Engine) RateDecision(action, outcome, tier string) {
	if m == nil {
		return
	}
	m.RateDecisions.WithLabelValues(action, outcome, tier).Inc()
}

func (m *Engine) ContentFinding(rule string, hard bool) {
	if m == nil {
		return
	}
	severity := "soft"
	if hard {
		severity = "hard"
	}
	m.ContentFindings.WithLabelValues(rule, severity).Inc()
}

func (m *Engine) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Engine) ReporterFlag() {
	if m == nil {
		return
	}
	m.ReporterFlags.Inc()
}

func (m *Engine) VisibilityExclusion(condition string) {
	if m == nil {
		return
	}
	m.VisibilityExclusions.WithLabelValues(condition).Inc()
}

func (m *Engine) StoreFailure(component, policy string) {
	if m == nil {
		return
	}
	m.StoreFailures.WithLabelValues(component, policy).Inc()
}

// Middleware records request count and latency by chi route pattern.
func (m *Engine) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())
	})
}
