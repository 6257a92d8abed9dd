package handson

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/store"
	"github.com/planforge/planforge/tools/docfetch"
)

// Gathering action names, used in GatherError.
const (
	actionDependencies = "dependency_lookup"
	actionUseCase      = "use_case"
	actionSearch       = "web_search"
	actionFetch        = "doc_fetch"
)

// GatherError records one information-gathering action that failed. The
// action's output is omitted from the generation context; nothing else is
// affected.
type GatherError struct {
	Action string `json:"action"`
	Detail string `json:"detail"`
}

// GatheredContext is the merged output of the execute stage.
type GatheredContext struct {
	RelatedTasks []store.Task
	UseCase      string
	References   []llm.Reference
	Documents    []*docfetch.Document
	Errors       []GatherError
}

// execute runs the plan's gathering actions concurrently and joins after
// all have settled. Each action owns its own result field, so no shared
// mutable state crosses goroutines except the mutex-guarded error list.
// No model calls happen here.
func (a *Agent) execute(ctx context.Context, project *store.Project, task *store.Task, plan *InformationPlan) *GatheredContext {
	ctx, cancel := context.WithTimeout(ctx, a.gatherTimeout)
	defer cancel()

	gathered := &GatheredContext{}
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
	)
	fail := func(action string, err error) {
		errMu.Lock()
		gathered.Errors = append(gathered.Errors, GatherError{Action: action, Detail: err.Error()})
		errMu.Unlock()
		a.logger.Warn("Gathering action failed", "task_id", task.ID, "action", action, "error", err)
	}

	if plan.NeedsDependencyInfo {
		wg.Add(1)
		go func() {
			defer wg.Done()
			related, err := a.lookupRelatedTasks(ctx, task, plan.DependencyKeywords)
			if err != nil {
				fail(actionDependencies, err)
				return
			}
			gathered.RelatedTasks = related
		}()
	}

	if plan.NeedsUseCase {
		wg.Add(1)
		go func() {
			defer wg.Done()
			useCase, err := a.useCaseExcerpt(ctx, project, plan.UseCaseCategory)
			if err != nil {
				fail(actionUseCase, err)
				return
			}
			gathered.UseCase = useCase
		}()
	}

	if len(plan.SearchQueries) > 0 && a.search != nil && a.search.Available() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gathered.References = a.runSearches(ctx, plan.SearchQueries, fail)
		}()
	}

	if len(plan.DocURLs) > 0 && a.fetch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gathered.Documents = a.fetchDocuments(ctx, plan.DocURLs, fail)
		}()
	}

	wg.Wait()
	return gathered
}

// lookupRelatedTasks finds the project's tasks matching the dependency
// keywords, excluding the task itself, deduplicated by title, capped at
// maxRelatedTasks.
func (a *Agent) lookupRelatedTasks(ctx context.Context, task *store.Task, keywords []string) ([]store.Task, error) {
	tasks, err := a.store.ListTasksByProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		task store.Task
		hits int
	}
	seen := make(map[string]bool)
	var matches []scored
	for _, t := range tasks {
		if t.ID == task.ID {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(t.Title))
		if seen[key] {
			continue
		}
		haystack := strings.ToLower(t.Title + " " + t.Description)
		hits := 0
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(haystack, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		seen[key] = true
		matches = append(matches, scored{task: t, hits: hits})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].hits > matches[j].hits })
	if len(matches) > maxRelatedTasks {
		matches = matches[:maxRelatedTasks]
	}
	out := make([]store.Task, len(matches))
	for i, m := range matches {
		out[i] = m.task
	}
	return out, nil
}

// useCaseExcerpt renders the project idea plus the functions of the
// requested category as specification context.
func (a *Agent) useCaseExcerpt(ctx context.Context, project *store.Project, category string) (string, error) {
	functions, err := a.store.ListFunctions(ctx, project.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if project.Idea != "" {
		fmt.Fprintf(&b, "Project idea: %s\n", project.Idea)
	}
	category = strings.ToLower(strings.TrimSpace(category))
	for _, f := range functions {
		if category != "" && f.Category != category {
			continue
		}
		fmt.Fprintf(&b, "- %s %s (%s): %s\n", f.FunctionCode, f.FunctionName, f.Priority, f.Description)
	}
	return strings.TrimSpace(b.String()), nil
}

// runSearches executes each query, absorbing per-query failures. Results
// dedupe by URL across queries.
func (a *Agent) runSearches(ctx context.Context, queries []string, fail func(string, error)) []llm.Reference {
	seen := make(map[string]bool)
	var refs []llm.Reference
	for _, query := range queries {
		results, err := a.search.Search(ctx, query, maxSearchQueries)
		if err != nil {
			fail(actionSearch, fmt.Errorf("query %q: %w", query, err))
			continue
		}
		for _, ref := range results {
			if seen[ref.URL] {
				continue
			}
			seen[ref.URL] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// fetchDocuments fetches each planned URL, absorbing per-URL failures.
func (a *Agent) fetchDocuments(ctx context.Context, urls []string, fail func(string, error)) []*docfetch.Document {
	var docs []*docfetch.Document
	for _, u := range urls {
		doc, err := a.fetch.Fetch(ctx, u)
		if err != nil {
			fail(actionFetch, fmt.Errorf("%s: %w", u, err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}
