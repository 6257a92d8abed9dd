package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/llm"
)

func TestRecorderRecordCallSuccess(t *testing.T) {
	rec := NewRecorder()

	rec.RecordCall("fast", "anthropic", "claude-haiku", "success", 250*time.Millisecond, llm.TokenUsage{
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
	})

	requests := rec.llmRequests.WithLabelValues("fast", "anthropic", "claude-haiku", "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(requests))

	prompt := rec.llmTokens.WithLabelValues("fast", "prompt")
	completion := rec.llmTokens.WithLabelValues("fast", "completion")
	assert.Equal(t, 10.0, testutil.ToFloat64(prompt))
	assert.Equal(t, 5.0, testutil.ToFloat64(completion))

	assert.Equal(t, 1, testutil.CollectAndCount(rec.llmDuration))
}

func TestRecorderRecordCallFailureSkipsTokens(t *testing.T) {
	rec := NewRecorder()

	rec.RecordCall("structuring", "openai", "gpt-4o", "fatal_error", time.Second, llm.TokenUsage{
		PromptTokens:     100,
		CompletionTokens: 50,
	})

	requests := rec.llmRequests.WithLabelValues("structuring", "openai", "gpt-4o", "fatal_error")
	assert.Equal(t, 1.0, testutil.ToFloat64(requests))

	prompt := rec.llmTokens.WithLabelValues("structuring", "prompt")
	completion := rec.llmTokens.WithLabelValues("structuring", "completion")
	assert.Equal(t, 0.0, testutil.ToFloat64(prompt))
	assert.Equal(t, 0.0, testutil.ToFloat64(completion))
}

func TestRecorderRecordCallAccumulates(t *testing.T) {
	rec := NewRecorder()

	for i := 0; i < 3; i++ {
		rec.RecordCall("analysis", "ollama", "qwen2.5:14b", "success", 100*time.Millisecond, llm.TokenUsage{
			PromptTokens:     20,
			CompletionTokens: 10,
		})
	}

	requests := rec.llmRequests.WithLabelValues("analysis", "ollama", "qwen2.5:14b", "success")
	assert.Equal(t, 3.0, testutil.ToFloat64(requests))
	assert.Equal(t, 60.0, testutil.ToFloat64(rec.llmTokens.WithLabelValues("analysis", "prompt")))
	assert.Equal(t, 30.0, testutil.ToFloat64(rec.llmTokens.WithLabelValues("analysis", "completion")))
}

func TestRecorderRecordWorkflow(t *testing.T) {
	rec := NewRecorder()

	rec.RecordWorkflow("structuring", "success", 42*time.Second)
	rec.RecordWorkflow("structuring", "failed", 3*time.Second)
	rec.RecordWorkflow("taskgen", "success", 12*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.workflowRuns.WithLabelValues("structuring", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.workflowRuns.WithLabelValues("structuring", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.workflowRuns.WithLabelValues("taskgen", "success")))

	// One histogram series per workflow label.
	assert.Equal(t, 2, testutil.CollectAndCount(rec.workflowDuration))
}

func TestRecorderRecordJobUnit(t *testing.T) {
	rec := NewRecorder()

	rec.RecordJobUnit("handson", "success")
	rec.RecordJobUnit("handson", "success")
	rec.RecordJobUnit("handson", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.jobUnits.WithLabelValues("handson", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.jobUnits.WithLabelValues("handson", "failed")))
}

func TestRecordersUseIndependentRegistries(t *testing.T) {
	// Constructing twice must not panic with duplicate registration, and
	// counts must not bleed between recorders.
	a := NewRecorder()
	b := NewRecorder()

	a.RecordJobUnit("handson", "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.jobUnits.WithLabelValues("handson", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.jobUnits.WithLabelValues("handson", "success")))
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder()
	rec.RecordCall("writing", "anthropic", "claude-sonnet", "success", time.Second, llm.TokenUsage{
		PromptTokens:     7,
		CompletionTokens: 3,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "planforge_llm_requests_total")
	assert.Contains(t, body, `capability="writing"`)
	assert.Contains(t, body, "planforge_llm_tokens_total")
}

func TestServerRoutesMetricsEndpoint(t *testing.T) {
	rec := NewRecorder()
	rec.RecordJobUnit("taskgen", "success")

	srv := NewServer("127.0.0.1:0", rec)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "planforge_job_units_total")

	// Unknown paths are not served.
	other := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	ow := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(ow, other)
	assert.Equal(t, http.StatusNotFound, ow.Code)
}
