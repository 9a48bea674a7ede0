// Package metrics holds the prometheus collectors of the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenantgate"

type Metrics struct {
	registry *prometheus.Registry

	RateLimitDecisions   *prometheus.CounterVec
	StoreErrors          *prometheus.CounterVec
	BreakerState         *prometheus.GaugeVec
	FlagEvaluations      *prometheus.CounterVec
	FlagCacheLookups     *prometheus.CounterVec
	FlagEvaluationErrors *prometheus.CounterVec
	DependencyUp         *prometheus.GaugeVec
}

// New registers every collector on a fresh registry, so several instances can
// coexist in one process (tests).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limit decisions by limiter and outcome.",
		}, []string{"limiter", "outcome"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed calls to shared stores; requests fail open.",
		}, []string{"store"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "0 closed, 1 open, 2 half-open.",
		}, []string{"breaker"}),
		FlagEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_flag_evaluations_total",
			Help:      "Feature flag evaluations by flag type and result.",
		}, []string{"type", "result"}),
		FlagCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_flag_cache_lookups_total",
			Help:      "Override cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		FlagEvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_flag_evaluation_errors_total",
			Help:      "Evaluations that fell back to the default value.",
		}, []string{"reason"}),
		DependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "1 when the dependency passes its health check.",
		}, []string{"dependency"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RateLimitDecisions,
		m.StoreErrors,
		m.BreakerState,
		m.FlagEvaluations,
		m.FlagCacheLookups,
		m.FlagEvaluationErrors,
		m.DependencyUp,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) RecordDecision(limiter, outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(limiter, outcome).Inc()
}

func (m *Metrics) RecordStoreError(store string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(store).Inc()
}

func (m *Metrics) SetBreakerState(breaker string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(breaker).Set(float64(state))
}

func (m *Metrics) RecordFlagEvaluation(flagType, result string) {
	if m == nil {
		return
	}
	m.FlagEvaluations.WithLabelValues(flagType, result).Inc()
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.FlagCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordFlagError(reason string) {
	if m == nil {
		return
	}
	m.FlagEvaluationErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetDependencyUp(dependency string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.DependencyUp.WithLabelValues(dependency).Set(value)
}
