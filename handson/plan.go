package handson

import (
	"context"
	"net/url"
	"strings"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// Per-category gathering limits.
const (
	maxSearchQueries = 3
	maxDocURLs       = 3
	maxRelatedTasks  = 5
)

// InformationPlan is the single reasoning step of the pipeline: what
// contextual information the guide needs and where to get it. Everything
// after this is reasoning-free tool execution.
type InformationPlan struct {
	NeedsDependencyInfo bool     `json:"needs_dependency_info"`
	DependencyKeywords  []string `json:"dependency_keywords,omitempty"`
	NeedsUseCase        bool     `json:"needs_use_case"`
	UseCaseCategory     string   `json:"use_case_category,omitempty"`
	SearchQueries       []string `json:"search_queries,omitempty"`
	DocURLs             []string `json:"doc_urls,omitempty"`
	Reasoning           string   `json:"reasoning,omitempty"`
}

// plan runs the one fast model call deciding what to gather.
func (a *Agent) plan(ctx context.Context, project *store.Project, task *store.Task) (*InformationPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, a.planTimeout)
	defer cancel()

	var plan InformationPlan
	_, err := a.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("info-plan")),
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt()},
			{Role: "user", Content: planUserPrompt(project, task)},
		},
	}, &plan)
	if err != nil {
		return nil, err
	}
	normalizePlan(&plan)
	return &plan, nil
}

// normalizePlan enforces the per-category limits and the deep-URL policy.
// The model is asked for specific documentation pages; root and landing
// URLs slip through anyway and are filtered here deterministically rather
// than re-prompting.
func normalizePlan(plan *InformationPlan) {
	plan.SearchQueries = dedupeStrings(plan.SearchQueries, maxSearchQueries)
	plan.DependencyKeywords = dedupeStrings(plan.DependencyKeywords, maxRelatedTasks)

	var urls []string
	for _, raw := range plan.DocURLs {
		if isDeepURL(raw) {
			urls = append(urls, raw)
		}
	}
	plan.DocURLs = dedupeStrings(urls, maxDocURLs)

	if len(plan.DependencyKeywords) == 0 {
		plan.NeedsDependencyInfo = false
	}
	if plan.UseCaseCategory == "" {
		plan.NeedsUseCase = false
	}
}

// isDeepURL reports whether raw points at a specific page rather than a
// site root or bare landing page.
func isDeepURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	path := strings.Trim(u.Path, "/")
	return path != ""
}

func dedupeStrings(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
