package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/planforge/planforge/llm"
	_ "github.com/planforge/planforge/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	available bool
	results   map[string][]llm.Reference
	err       error
	queries   []string
}

func (f *fakeSearcher) Available() bool { return f.available }

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]llm.Reference, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

// capturingChatServer records the system prompt of each request.
func capturingChatServer(t *testing.T, systemPrompts *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, m := range body.Messages {
			if m.Role == "system" {
				*systemPrompts = append(*systemPrompts, m.Content)
			}
		}

		resp := map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": "Grounded answer"},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_CompleteWithGrounding_InjectsReferences(t *testing.T) {
	var systemPrompts []string
	server := capturingChatServer(t, &systemPrompts)
	defer server.Close()

	searcher := &fakeSearcher{
		available: true,
		results: map[string][]llm.Reference{
			"go web frameworks": {
				{Title: "Gin", URL: "https://gin-gonic.com", Snippet: "HTTP web framework"},
				{Title: "Echo", URL: "https://echo.labstack.com", Snippet: "Minimalist framework"},
			},
		},
	}

	client := llm.NewClient(singleEndpointRegistry(server.URL), llm.WithSearcher(searcher))

	resp, err := client.CompleteWithGrounding(context.Background(), llm.GroundedRequest{
		Request: llm.Request{
			Capability: "fast",
			Messages:   []llm.Message{{Role: "user", Content: "Recommend a framework"}},
		},
		Queries: []string{"go web frameworks"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Grounded answer", resp.Content)
	require.Len(t, resp.References, 2)
	assert.Equal(t, "Gin", resp.References[0].Title)

	require.Len(t, systemPrompts, 1)
	assert.Contains(t, systemPrompts[0], "[1] Gin")
	assert.Contains(t, systemPrompts[0], "https://echo.labstack.com")
}

func TestClient_CompleteWithGrounding_DeduplicatesByURL(t *testing.T) {
	var systemPrompts []string
	server := capturingChatServer(t, &systemPrompts)
	defer server.Close()

	searcher := &fakeSearcher{
		available: true,
		results: map[string][]llm.Reference{
			"query one": {{Title: "Doc", URL: "https://example.com/doc", Snippet: "a"}},
			"query two": {{Title: "Doc again", URL: "https://example.com/doc", Snippet: "b"}},
		},
	}

	client := llm.NewClient(singleEndpointRegistry(server.URL), llm.WithSearcher(searcher))

	resp, err := client.CompleteWithGrounding(context.Background(), llm.GroundedRequest{
		Request: llm.Request{
			Capability: "fast",
			Messages:   []llm.Message{{Role: "user", Content: "x"}},
		},
		Queries: []string{"query one", "query two"},
	})

	require.NoError(t, err)
	assert.Len(t, resp.References, 1)
}

func TestClient_CompleteWithGrounding_NoSearcherDegrades(t *testing.T) {
	var systemPrompts []string
	server := capturingChatServer(t, &systemPrompts)
	defer server.Close()

	// No searcher configured at all
	client := llm.NewClient(singleEndpointRegistry(server.URL))

	resp, err := client.CompleteWithGrounding(context.Background(), llm.GroundedRequest{
		Request: llm.Request{
			Capability: "fast",
			Messages:   []llm.Message{{Role: "user", Content: "x"}},
		},
		Queries: []string{"anything"},
	})

	require.NoError(t, err)
	assert.Empty(t, resp.References)
	assert.Empty(t, systemPrompts)
}

func TestClient_CompleteWithGrounding_UnavailableSearcherDegrades(t *testing.T) {
	var systemPrompts []string
	server := capturingChatServer(t, &systemPrompts)
	defer server.Close()

	searcher := &fakeSearcher{available: false}
	client := llm.NewClient(singleEndpointRegistry(server.URL), llm.WithSearcher(searcher))

	resp, err := client.CompleteWithGrounding(context.Background(), llm.GroundedRequest{
		Request: llm.Request{
			Capability: "fast",
			Messages:   []llm.Message{{Role: "user", Content: "x"}},
		},
		Queries: []string{"anything"},
	})

	require.NoError(t, err)
	assert.Empty(t, resp.References)
	assert.Empty(t, searcher.queries, "unavailable searcher should never be queried")
}

func TestClient_CompleteWithGrounding_SearchErrorSkipsQuery(t *testing.T) {
	var systemPrompts []string
	server := capturingChatServer(t, &systemPrompts)
	defer server.Close()

	searcher := &fakeSearcher{
		available: true,
		err:       errors.New("search backend down"),
	}
	client := llm.NewClient(singleEndpointRegistry(server.URL), llm.WithSearcher(searcher))

	resp, err := client.CompleteWithGrounding(context.Background(), llm.GroundedRequest{
		Request: llm.Request{
			Capability: "fast",
			Messages:   []llm.Message{{Role: "user", Content: "x"}},
		},
		Queries: []string{"failing query"},
	})

	require.NoError(t, err, "per-query search failures must not fail the completion")
	assert.Empty(t, resp.References)
}

func TestClient_CompleteWithGrounding_LongSnippetTruncated(t *testing.T) {
	var systemPrompts []string
	server := capturingChatServer(t, &systemPrompts)
	defer server.Close()

	searcher := &fakeSearcher{
		available: true,
		results: map[string][]llm.Reference{
			"q": {{Title: "Long", URL: "https://example.com", Snippet: strings.Repeat("x", 900)}},
		},
	}
	client := llm.NewClient(singleEndpointRegistry(server.URL), llm.WithSearcher(searcher))

	_, err := client.CompleteWithGrounding(context.Background(), llm.GroundedRequest{
		Request: llm.Request{
			Capability: "fast",
			Messages:   []llm.Message{{Role: "user", Content: "x"}},
		},
		Queries: []string{"q"},
	})

	require.NoError(t, err)
	require.Len(t, systemPrompts, 1)
	assert.Contains(t, systemPrompts[0], "...")
	assert.Less(t, len(systemPrompts[0]), 700)
}
