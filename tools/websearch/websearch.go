// Package websearch implements the web search tool backing grounded
// completions. It speaks a Tavily-style JSON API: one POST per query,
// scored results back. Without an API key the client reports unavailable
// and callers degrade to ungrounded generation.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/planforge/planforge/llm"
)

const (
	defaultMaxResults = 3
	defaultTimeout    = 10 * time.Second
)

// Options configures the search client.
type Options struct {
	// BaseURL is the API endpoint, without the /search path.
	BaseURL string
	// APIKey authenticates requests. Empty makes the client unavailable.
	APIKey string
	// MaxResults caps results per query when the caller passes none.
	MaxResults int
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// Logger receives request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client queries the search API.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ llm.Searcher = (*Client)(nil)

// New creates a search client from options.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Available reports whether the client holds a credential.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search runs one query and returns the top results as references, highest
// score first. maxResults <= 0 uses the client default.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]llm.Reference, error) {
	if !c.Available() {
		return nil, fmt.Errorf("search is not configured: missing API key")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("search request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if isRetryableStatus(resp.StatusCode) {
			return nil, llm.NewTransientError(err)
		}
		return nil, llm.NewFatalError(err)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	sort.SliceStable(parsed.Results, func(i, j int) bool {
		return parsed.Results[i].Score > parsed.Results[j].Score
	})
	if len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}

	refs := make([]llm.Reference, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		refs = append(refs, llm.Reference{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
	}

	c.logger.Debug("Web search completed",
		"query", query,
		"results", len(refs),
		"duration_ms", time.Since(start).Milliseconds())

	return refs, nil
}

// isRetryableStatus reports whether a failed response may succeed on retry.
// Rate limits, request timeouts, and server errors are transient; everything
// else is treated as fatal.
func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}
