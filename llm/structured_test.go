package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/planforge/planforge/llm"
	_ "github.com/planforge/planforge/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer returns an httptest server that serves the given contents in
// order, one per request, in OpenAI chat format.
func chatServer(t *testing.T, contents ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(calls.Add(1)) - 1
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{
					"message": map[string]string{
						"role":    "assistant",
						"content": contents[idx],
					},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	return server, &calls
}

func TestClient_CompleteStructured_Success(t *testing.T) {
	server, calls := chatServer(t, "```json\n{\"name\": \"checkout\", \"priority\": 2}\n```")
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry(server.URL))

	var out struct {
		Name     string `json:"name"`
		Priority int    `json:"priority"`
	}

	resp, err := client.CompleteStructured(context.Background(), llm.Request{
		Capability: "fast",
		Messages:   []llm.Message{{Role: "user", Content: "Classify"}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "checkout", out.Name)
	assert.Equal(t, 2, out.Priority)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, resp)
}

func TestClient_CompleteStructured_RepairRoundTrip(t *testing.T) {
	// First response has no JSON; the repair pass returns valid JSON.
	server, calls := chatServer(t,
		"Sorry, here is my analysis in prose rather than JSON.",
		`{"name": "repaired"}`,
	)
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry(server.URL))

	var out struct {
		Name string `json:"name"`
	}

	_, err := client.CompleteStructured(context.Background(), llm.Request{
		Capability: "fast",
		Messages:   []llm.Message{{Role: "user", Content: "Classify"}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "repaired", out.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CompleteStructured_RepairSendsParseContext(t *testing.T) {
	var sawRepairPrompt atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		content := "no json here"
		for _, m := range body.Messages {
			if m.Role == "user" && len(m.Content) > 0 && m.Content != "Classify" {
				// Repair prompt carries the parse error back
				sawRepairPrompt.Store(true)
				content = `{"ok": true}`
			}
		}

		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry(server.URL))

	var out struct {
		OK bool `json:"ok"`
	}

	_, err := client.CompleteStructured(context.Background(), llm.Request{
		Capability: "fast",
		Messages:   []llm.Message{{Role: "user", Content: "Classify"}},
	}, &out)

	require.NoError(t, err)
	assert.True(t, sawRepairPrompt.Load())
	assert.True(t, out.OK)
}

func TestClient_CompleteStructured_ParseErrorAfterRepair(t *testing.T) {
	// Both the original and the repair pass return garbage.
	server, calls := chatServer(t,
		"still not json",
		"and neither is this",
	)
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry(server.URL))

	var out map[string]any
	_, err := client.CompleteStructured(context.Background(), llm.Request{
		Capability: "fast",
		Messages:   []llm.Message{{Role: "user", Content: "Classify"}},
	}, &out)

	require.Error(t, err)
	assert.True(t, llm.IsParseError(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CompleteStructured_ArrayPayload(t *testing.T) {
	server, _ := chatServer(t, "```json\n[\"alpha\", \"beta\"]\n```")
	defer server.Close()

	client := llm.NewClient(singleEndpointRegistry(server.URL))

	var out []string
	_, err := client.CompleteStructured(context.Background(), llm.Request{
		Capability: "fast",
		Messages:   []llm.Message{{Role: "user", Content: "List"}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, out)
}

func TestClient_CompleteStructured_NilTarget(t *testing.T) {
	client := llm.NewClient(singleEndpointRegistry("http://localhost:0"))

	_, err := client.CompleteStructured(context.Background(), llm.Request{
		Capability: "fast",
		Messages:   []llm.Message{{Role: "user", Content: "x"}},
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "target is required")
}
