package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/llm"
)

func TestSearchSendsRequest(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(searchResponse{Results: []searchResult{
			{Title: "GORM Guides", URL: "https://gorm.io/docs/", Content: "The fantastic ORM", Score: 0.95},
			{Title: "GORM GitHub", URL: "https://github.com/go-gorm/gorm", Content: "Source repo", Score: 0.81},
		}})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, APIKey: "test-key"})
	refs, err := c.Search(context.Background(), "gorm documentation", 3)
	require.NoError(t, err)

	assert.Equal(t, "test-key", got.APIKey)
	assert.Equal(t, "gorm documentation", got.Query)
	assert.Equal(t, 3, got.MaxResults)

	require.Len(t, refs, 2)
	assert.Equal(t, "GORM Guides", refs[0].Title)
	assert.Equal(t, "https://gorm.io/docs/", refs[0].URL)
	assert.Equal(t, "The fantastic ORM", refs[0].Snippet)
}

func TestSearchOrdersByScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Results: []searchResult{
			{Title: "Low", URL: "https://example.com/low", Score: 0.2},
			{Title: "High", URL: "https://example.com/high", Score: 0.9},
			{Title: "Mid", URL: "https://example.com/mid", Score: 0.5},
		}})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, APIKey: "k"})
	refs, err := c.Search(context.Background(), "ranking", 2)
	require.NoError(t, err)

	require.Len(t, refs, 2, "results are capped at maxResults")
	assert.Equal(t, "High", refs[0].Title)
	assert.Equal(t, "Mid", refs[1].Title)
}

func TestSearchDefaultsMaxResults(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, APIKey: "k", MaxResults: 5})
	_, err := c.Search(context.Background(), "defaults", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxResults)
}

func TestSearchSkipsResultsWithoutURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Results: []searchResult{
			{Title: "No URL", Score: 0.9},
			{Title: "Valid", URL: "https://example.com", Score: 0.5},
		}})
	}))
	defer server.Close()

	c := New(Options{BaseURL: server.URL, APIKey: "k"})
	refs, err := c.Search(context.Background(), "urls", 3)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Valid", refs[0].Title)
}

func TestSearchHTTPError(t *testing.T) {
	t.Run("rate limit is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := New(Options{BaseURL: server.URL, APIKey: "k"})
		_, err := c.Search(context.Background(), "limits", 3)
		require.Error(t, err)
		assert.True(t, llm.IsTransient(err))
		assert.Contains(t, err.Error(), "429")
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("server error is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer server.Close()

		c := New(Options{BaseURL: server.URL, APIKey: "k"})
		_, err := c.Search(context.Background(), "outage", 3)
		require.Error(t, err)
		assert.True(t, llm.IsTransient(err))
	})

	t.Run("bad request is fatal", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid key", http.StatusUnauthorized)
		}))
		defer server.Close()

		c := New(Options{BaseURL: server.URL, APIKey: "k"})
		_, err := c.Search(context.Background(), "auth", 3)
		require.Error(t, err)
		assert.False(t, llm.IsTransient(err))
		assert.True(t, llm.IsFatal(err))
	})
}

func TestSearchWithoutCredential(t *testing.T) {
	c := New(Options{BaseURL: "https://api.example.com"})
	assert.False(t, c.Available())

	_, err := c.Search(context.Background(), "anything", 3)
	require.Error(t, err)
}

func TestSearchEmptyQueryIsNoOp(t *testing.T) {
	c := New(Options{BaseURL: "https://api.example.com", APIKey: "k"})
	refs, err := c.Search(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Nil(t, refs)
}
