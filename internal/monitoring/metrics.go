package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ExtractionsTotal    *prometheus.CounterVec
	FetchAttemptsTotal  *prometheus.CounterVec
	LLMTokensTotal      *prometheus.CounterVec
	LLMCostTotal        *prometheus.CounterVec
	PhaseDuration       *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ExtractionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexacat_extractions_total",
			Help: "The total number of draft extractions by outcome",
		}, []string{"outcome"}), // e.g., 'drafted', 'failed_fetching'
		FetchAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexacat_fetch_attempts_total",
			Help: "Page fetch attempts per strategy",
		}, []string{"strategy", "outcome"}),
		LLMTokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexacat_llm_tokens_total",
			Help: "Tokens consumed by the extraction model",
		}, []string{"model", "kind"}),
		LLMCostTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexacat_llm_cost_usd_total",
			Help: "Estimated model cost in USD",
		}, []string{"model"}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexacat_pipeline_phase_duration_seconds",
			Help:    "Duration of draft pipeline phases",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		}, []string{"phase"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) IncExtraction(outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncFetchAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) AddLLMUsage(model string, promptTokens, completionTokens int, cost float64) {
	if m == nil {
		return
	}
	m.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	m.LLMCostTotal.WithLabelValues(model).Add(cost)
}

func (m *Metrics) ObservePhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
