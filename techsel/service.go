// Package techsel recommends a technology stack per decision domain during
// framework selection. Each recommendation is a grounded completion over
// the domain's option set and the project context; the references behind it
// are persisted on the selection row.
package techsel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/planforge/planforge/fault"
	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// grounder is the subset of the llm client the service calls.
type grounder interface {
	CompleteWithGrounding(ctx context.Context, req llm.GroundedRequest) (*llm.GroundedResponse, error)
}

// Service recommends and persists technology selections.
type Service struct {
	store  *store.Store
	llm    grounder
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a technology selection service.
func New(st *store.Store, client *llm.Client, opts ...Option) *Service {
	s := &Service{store: st, llm: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recommendation is one domain's recommended stack.
type Recommendation struct {
	Domain     store.TechDomain `json:"domain"`
	Stack      store.TechStack  `json:"stack"`
	Reason     string           `json:"reason"`
	References []llm.Reference  `json:"references,omitempty"`
}

// RecommendResult aggregates one run over all domains.
type RecommendResult struct {
	Recommendations []Recommendation        `json:"recommendations"`
	Failures        []*fault.PartialFailure `json:"-"`
}

type selectionResponse struct {
	Stack  string `json:"stack"`
	Reason string `json:"reason"`
}

// Recommend produces and upserts one selection per tech domain for the
// project. A domain failing (no parseable choice, model error) is recorded
// and skipped; siblings proceed. Missing search credentials degrade each
// recommendation to ungrounded with empty references — the client handles
// that without error.
func (s *Service) Recommend(ctx context.Context, projectID uuid.UUID) (*RecommendResult, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	domains, err := s.store.ListTechDomains(ctx)
	if err != nil {
		return nil, err
	}

	res := &RecommendResult{}
	for _, domain := range domains {
		stacks, err := s.store.ListTechStacks(ctx, domain.ID)
		if err != nil {
			return nil, err
		}
		if len(stacks) == 0 {
			continue
		}

		rec, err := s.recommendDomain(ctx, project, domain, stacks)
		if err != nil {
			res.Failures = append(res.Failures, fault.NewPartialFailure(domain.Name, err))
			s.logger.Warn("Recommendation failed for domain",
				"project_id", projectID,
				"domain", domain.Name,
				"error", err)
			continue
		}
		res.Recommendations = append(res.Recommendations, *rec)
	}

	s.logger.Info("Technology recommendations completed",
		"project_id", projectID,
		"domains", len(domains),
		"recommended", len(res.Recommendations),
		"failed", len(res.Failures))
	return res, nil
}

func (s *Service) recommendDomain(ctx context.Context, project *store.Project, domain store.TechDomain, stacks []store.TechStack) (*Recommendation, error) {
	resp, err := s.llm.CompleteWithGrounding(ctx, llm.GroundedRequest{
		Request: llm.Request{
			Capability: string(model.CapabilityAnalysis),
			Messages: []llm.Message{
				{Role: "system", Content: selectionSystemPrompt()},
				{Role: "user", Content: selectionUserPrompt(project, domain, stacks)},
			},
		},
		Queries: groundingQueries(project, domain),
	})
	if err != nil {
		return nil, err
	}

	var choice selectionResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &choice); err != nil {
		return nil, llm.NewParseError("selection response", err)
	}

	stack, ok := matchStack(stacks, choice.Stack)
	if !ok {
		return nil, fault.NewValidationErrorf("stack", "model chose %q, not an option for %s", choice.Stack, domain.Name)
	}

	sel := &store.TechSelection{
		ProjectID: project.ID,
		DomainID:  domain.ID,
		StackID:   stack.ID,
		Reason:    choice.Reason,
	}
	if len(resp.References) > 0 {
		if data, err := json.Marshal(resp.References); err == nil {
			sel.References = data
		}
	}
	if err := s.store.UpsertTechSelection(ctx, sel); err != nil {
		return nil, err
	}

	return &Recommendation{
		Domain:     domain,
		Stack:      stack,
		Reason:     choice.Reason,
		References: resp.References,
	}, nil
}

// groundingQueries derives the web searches backing one domain decision.
func groundingQueries(project *store.Project, domain store.TechDomain) []string {
	idea := strings.TrimSpace(project.Idea)
	if idea == "" {
		idea = project.Title
	}
	if len(idea) > 80 {
		idea = idea[:80]
	}
	return []string{
		fmt.Sprintf("%s comparison 2026", domain.Name),
		fmt.Sprintf("best %s for %s", domain.Name, idea),
	}
}

func matchStack(stacks []store.TechStack, name string) (store.TechStack, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, stack := range stacks {
		if strings.ToLower(stack.Name) == name {
			return stack, true
		}
	}
	return store.TechStack{}, false
}
