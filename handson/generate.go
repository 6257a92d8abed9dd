package handson

import (
	"context"
	"fmt"
	"strings"

	"github.com/planforge/planforge/llm"
	"github.com/planforge/planforge/model"
	"github.com/planforge/planforge/store"
)

// Implementation tip categories.
const (
	TipBestPractice = "best_practice"
	TipAntiPattern  = "anti_pattern"
	TipGotcha       = "gotcha"
	TipSecurity     = "security"
	TipPerformance  = "performance"
)

// TargetFile names one file the task creates or modifies.
type TargetFile struct {
	Path        string `json:"path"`
	Action      string `json:"action"` // "create" or "modify"
	Description string `json:"description,omitempty"`
}

// CodeExample is one code sample, kept separate from the step list.
type CodeExample struct {
	Title       string `json:"title"`
	Language    string `json:"language,omitempty"`
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// CommonError is a known failure mode with its cause and fix.
type CommonError struct {
	Error    string `json:"error"`
	Cause    string `json:"cause"`
	Solution string `json:"solution"`
}

// Tip is one categorized implementation hint.
type Tip struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

// TaskHandsOnOutput is the schema-constrained guide the generate stage
// produces.
type TaskHandsOnOutput struct {
	Overview            string        `json:"overview"`
	Prerequisites       []string      `json:"prerequisites,omitempty"`
	TargetFiles         []TargetFile  `json:"target_files,omitempty"`
	ImplementationSteps []string      `json:"implementation_steps"`
	CodeExamples        []CodeExample `json:"code_examples,omitempty"`
	Verification        []string      `json:"verification,omitempty"`
	CommonErrors        []CommonError `json:"common_errors,omitempty"`
	References          []string      `json:"references,omitempty"`
	TechnicalContext    string        `json:"technical_context,omitempty"`
	ImplementationTips  []Tip         `json:"implementation_tips,omitempty"`
}

// generate runs the one writing call producing the guide. Parse failures
// get the client's single repair pass; a second failure propagates.
func (a *Agent) generate(ctx context.Context, project *store.Project, task *store.Task, plan *InformationPlan, gathered *GatheredContext) (*TaskHandsOnOutput, *llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.generateTimeout)
	defer cancel()

	var output TaskHandsOnOutput
	resp, err := a.llm.CompleteStructured(ctx, llm.Request{
		Capability: string(model.CapabilityForStage("guide")),
		Messages: []llm.Message{
			{Role: "system", Content: generateSystemPrompt()},
			{Role: "user", Content: generateUserPrompt(project, task, formatContext(gathered))},
		},
	}, &output)
	if err != nil {
		return nil, nil, err
	}
	return &output, resp, nil
}

// formatContext merges the gathered information into one context block.
// Failed actions contributed nothing and are simply absent.
func formatContext(gathered *GatheredContext) string {
	var b strings.Builder

	if len(gathered.RelatedTasks) > 0 {
		b.WriteString("## Related tasks in this project\n\n")
		for _, t := range gathered.RelatedTasks {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", t.Title, t.Status, t.Description)
		}
		b.WriteString("\n")
	}

	if gathered.UseCase != "" {
		b.WriteString("## Specification excerpt\n\n")
		b.WriteString(gathered.UseCase)
		b.WriteString("\n\n")
	}

	if len(gathered.References) > 0 {
		b.WriteString("## Web references\n\n")
		for _, ref := range gathered.References {
			fmt.Fprintf(&b, "- [%s](%s): %s\n", ref.Title, ref.URL, ref.Snippet)
		}
		b.WriteString("\n")
	}

	for _, doc := range gathered.Documents {
		fmt.Fprintf(&b, "## Documentation: %s (%s)\n\n", doc.Title, doc.URL)
		b.WriteString(doc.ContentMarkdown)
		if doc.IsTruncated {
			b.WriteString("\n\n(content truncated)")
		}
		b.WriteString("\n\n")
	}

	return strings.TrimSpace(b.String())
}
