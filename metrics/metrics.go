// Package metrics provides Prometheus-based metrics recording for LLM calls,
// workflow runs, and background job units.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planforge/planforge/llm"
)

var _ llm.Recorder = (*Recorder)(nil)

// Recorder collects Prometheus metrics. It implements llm.Recorder and adds
// workflow and job observations. All metrics register on a private registry
// so multiple recorders can coexist; expose one via Handler.
type Recorder struct {
	registry *prometheus.Registry

	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	llmDuration      prometheus.Histogram
	workflowRuns     *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	jobUnits         *prometheus.CounterVec
}

// NewRecorder creates a recorder with all metric families registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planforge_llm_requests_total",
				Help: "Total number of LLM requests by capability, provider, model, and outcome",
			},
			[]string{"capability", "provider", "model", "outcome"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planforge_llm_tokens_total",
				Help: "Total number of tokens consumed by LLM requests",
			},
			[]string{"capability", "type"},
		),
		llmDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "planforge_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds, including retries and fallbacks",
				Buckets: prometheus.DefBuckets,
			},
		),
		workflowRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planforge_workflow_runs_total",
				Help: "Total number of workflow runs by workflow and outcome",
			},
			[]string{"workflow", "outcome"},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planforge_workflow_duration_seconds",
				Help:    "Duration of workflow runs in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"workflow"},
		),
		jobUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planforge_job_units_total",
				Help: "Total number of job units processed by job type and outcome",
			},
			[]string{"job_type", "outcome"},
		),
	}
}

// RecordCall records one LLM call observation. Token counters only advance on
// success; failed calls report no usage.
func (r *Recorder) RecordCall(capability, provider, modelName, outcome string, duration time.Duration, usage llm.TokenUsage) {
	r.llmRequests.WithLabelValues(capability, provider, modelName, outcome).Inc()
	r.llmDuration.Observe(duration.Seconds())

	if outcome == "success" {
		r.llmTokens.WithLabelValues(capability, "prompt").Add(float64(usage.PromptTokens))
		r.llmTokens.WithLabelValues(capability, "completion").Add(float64(usage.CompletionTokens))
	}
}

// RecordWorkflow records one completed workflow run.
func (r *Recorder) RecordWorkflow(workflow, outcome string, duration time.Duration) {
	r.workflowRuns.WithLabelValues(workflow, outcome).Inc()
	r.workflowDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordJobUnit records one processed job unit.
func (r *Recorder) RecordJobUnit(jobType, outcome string) {
	r.jobUnits.WithLabelValues(jobType, outcome).Inc()
}

// Handler returns the scrape handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
