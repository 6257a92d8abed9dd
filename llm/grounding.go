package llm

import (
	"context"
	"fmt"
	"strings"
)

// Reference is one web source backing a grounded completion.
type Reference struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher retrieves web references for grounding. Implemented by the
// websearch tool; Available reports false when no provider credential is
// configured, in which case grounding is skipped rather than failed.
type Searcher interface {
	Available() bool
	Search(ctx context.Context, query string, maxResults int) ([]Reference, error)
}

// GroundedRequest is a completion request augmented with web search queries.
type GroundedRequest struct {
	Request

	// Queries are the search queries to ground with. Empty skips search.
	Queries []string

	// MaxResults caps results per query. 0 uses a default of 3.
	MaxResults int
}

// GroundedResponse carries the completion plus the references that were fed
// into it. References is empty when search was unavailable or yielded
// nothing — that is a degraded success, not a failure.
type GroundedResponse struct {
	Response

	References []Reference
}

// CompleteWithGrounding runs the request's search queries, prepends the
// collected references to the prompt, and completes. Search failures are
// absorbed per-query; a missing or unconfigured searcher degrades to a plain
// completion with no references.
func (c *Client) CompleteWithGrounding(ctx context.Context, req GroundedRequest) (*GroundedResponse, error) {
	refs := c.gatherReferences(ctx, req)

	messages := req.Messages
	if len(refs) > 0 {
		messages = append([]Message{{Role: "system", Content: formatReferenceBlock(refs)}}, messages...)
	}

	resp, err := c.Complete(ctx, Request{
		Capability:  req.Capability,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &GroundedResponse{Response: *resp, References: refs}, nil
}

// gatherReferences runs the queries against the searcher, deduplicating by
// URL. Per-query failures are logged and skipped.
func (c *Client) gatherReferences(ctx context.Context, req GroundedRequest) []Reference {
	if c.searcher == nil || !c.searcher.Available() || len(req.Queries) == 0 {
		return nil
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}

	seen := make(map[string]bool)
	var refs []Reference

	for _, query := range req.Queries {
		results, err := c.searcher.Search(ctx, query, maxResults)
		if err != nil {
			c.logger.Warn("Grounding search failed, skipping query",
				"query", query,
				"error", err)
			continue
		}
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			refs = append(refs, r)
		}
	}

	return refs
}

// formatReferenceBlock renders references as a numbered context block.
func formatReferenceBlock(refs []Reference) string {
	var b strings.Builder
	b.WriteString("Web references gathered for this request. Cite them by number where relevant.\n\n")
	for i, r := range refs {
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			snippet := r.Snippet
			if len(snippet) > 500 {
				snippet = snippet[:500] + "..."
			}
			fmt.Fprintf(&b, "%s\n", snippet)
		}
		b.WriteString("\n")
	}
	return b.String()
}
