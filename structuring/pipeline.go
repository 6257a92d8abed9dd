package structuring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// ExtractedFunction is one candidate function flowing through an area
// sub-pipeline. Name, description, mentions, and confidence come from the
// extract stage; category and priority are filled in by the later stages.
type ExtractedFunction struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Mentions    []string `json:"mentions,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// ExtractedDependency is a candidate edge between two functions, identified
// by function name until persistence assigns IDs.
type ExtractedDependency struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// AreaResult is the outcome of one focus-area sub-pipeline. A failed area
// carries Err and contributes no functions; warnings record candidates the
// validation stage dropped.
type AreaResult struct {
	Area         FocusArea
	Functions    []ExtractedFunction
	Dependencies []ExtractedDependency
	Warnings     []string
	Err          error
}

type extractResponse struct {
	Functions []ExtractedFunction `json:"functions"`
}

type categorizeResponse struct {
	Assignments []struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"assignments"`
}

type prioritizeResponse struct {
	Assignments []struct {
		Name     string `json:"name"`
		Priority string `json:"priority"`
	} `json:"assignments"`
}

type dependencyResponse struct {
	Dependencies []ExtractedDependency `json:"dependencies"`
}

// runArea executes the extract, categorize, prioritize, analyze-dependencies,
// and validate stages for one focus area. Any stage error aborts the area;
// the caller records it and the area contributes zero functions.
func (w *Workflow) runArea(ctx context.Context, area FocusArea, requirement string) AreaResult {
	res := AreaResult{Area: area}

	var extracted extractResponse
	_, err := w.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("extract")),
		Messages: []llm.Message{
			{Role: "system", Content: extractSystemPrompt()},
			{Role: "user", Content: extractUserPrompt(area, requirement)},
		},
	}, &extracted)
	if err != nil {
		res.Err = fmt.Errorf("extract: %w", err)
		return res
	}

	candidates := extracted.Functions
	if len(candidates) == 0 {
		return res
	}

	categories, err := w.categorize(ctx, candidates)
	if err != nil {
		res.Err = fmt.Errorf("categorize: %w", err)
		return res
	}
	priorities, err := w.prioritize(ctx, candidates)
	if err != nil {
		res.Err = fmt.Errorf("prioritize: %w", err)
		return res
	}
	for i := range candidates {
		key := normalizeName(candidates[i].Name)
		candidates[i].Category = categories[key]
		candidates[i].Priority = priorities[key]
	}

	var deps dependencyResponse
	if len(candidates) > 1 {
		_, err = w.llm.CompleteStructured(ctx, llm.Request{
			Capability: string(model.CapabilityForStage("analyze-deps")),
			Messages: []llm.Message{
				{Role: "user", Content: dependenciesPrompt(area, candidates)},
			},
		}, &deps)
		if err != nil {
			res.Err = fmt.Errorf("analyze dependencies: %w", err)
			return res
		}
	}

	res.Functions, res.Dependencies, res.Warnings = validateArea(area, candidates, deps.Dependencies)
	return res
}

func (w *Workflow) categorize(ctx context.Context, candidates []ExtractedFunction) (map[string]string, error) {
	var resp categorizeResponse
	_, err := w.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("categorize")),
		Messages:   []llm.Message{{Role: "user", Content: categorizePrompt(candidates)}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Assignments))
	for _, a := range resp.Assignments {
		out[normalizeName(a.Name)] = a.Category
	}
	return out, nil
}

func (w *Workflow) prioritize(ctx context.Context, candidates []ExtractedFunction) (map[string]string, error) {
	var resp prioritizeResponse
	_, err := w.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("prioritize")),
		Messages:   []llm.Message{{Role: "user", Content: prioritizePrompt(candidates)}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Assignments))
	for _, a := range resp.Assignments {
		out[normalizeName(a.Name)] = a.Priority
	}
	return out, nil
}

// validateArea is the pipeline's structure check. Confidences are clamped
// and category/priority values normalized; candidates and edges that cannot
// be repaired are dropped. Drops are warnings, not errors.
func validateArea(area FocusArea, candidates []ExtractedFunction, edges []ExtractedDependency) ([]ExtractedFunction, []ExtractedDependency, []string) {
	var warnings []string

	kept := make([]ExtractedFunction, 0, len(candidates))
	names := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			warnings = append(warnings, fmt.Sprintf("area %s: dropped a function with no name", area.Name))
			continue
		}
		category, ok := normalizeCategory(c.Category)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("area %s: dropped %q: unknown category %q", area.Name, c.Name, c.Category))
			continue
		}
		priority, ok := normalizePriority(c.Priority)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("area %s: dropped %q: unknown priority %q", area.Name, c.Name, c.Priority))
			continue
		}
		c.Category = category
		c.Priority = priority
		c.Confidence = clamp01(c.Confidence)
		kept = append(kept, c)
		names[normalizeName(c.Name)] = true
	}

	keptEdges := make([]ExtractedDependency, 0, len(edges))
	for _, d := range edges {
		src, dst := normalizeName(d.Source), normalizeName(d.Target)
		if src == dst || !names[src] || !names[dst] {
			warnings = append(warnings, fmt.Sprintf("area %s: dropped dependency %q -> %q", area.Name, d.Source, d.Target))
			continue
		}
		keptEdges = append(keptEdges, d)
	}

	return kept, keptEdges, warnings
}

// categoryAliases maps common model spellings onto the store's categories.
var categoryAliases = map[string]string{
	"authentication":  store.CategoryAuth,
	"authorization":   store.CategoryAuth,
	"security":        store.CategoryAuth,
	"database":        store.CategoryData,
	"storage":         store.CategoryData,
	"data management": store.CategoryData,
	"business logic":  store.CategoryLogic,
	"frontend":        store.CategoryUI,
	"user interface":  store.CategoryUI,
	"interface":       store.CategoryUI,
	"endpoint":        store.CategoryAPI,
	"endpoints":       store.CategoryAPI,
	"integration":     store.CategoryAPI,
	"rest":            store.CategoryAPI,
	"infrastructure":  store.CategoryDeployment,
	"devops":          store.CategoryDeployment,
	"hosting":         store.CategoryDeployment,
}

func normalizeCategory(raw string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(raw))
	if store.IsValidCategory(c) {
		return c, true
	}
	if alias, ok := categoryAliases[c]; ok {
		return alias, true
	}
	return "", false
}

func normalizePriority(raw string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(raw))
	p = strings.TrimSuffix(p, " have")
	p = strings.ReplaceAll(p, "'", "")
	switch p {
	case "must":
		return store.PriorityMust, true
	case "should":
		return store.PriorityShould, true
	case "could":
		return store.PriorityCould, true
	case "wont", "will not":
		return store.PriorityWont, true
	}
	return "", false
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
