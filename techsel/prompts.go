package techsel

import (
	"fmt"
	"strings"

	"github.com/planforge/planforge/store"
)

// selectionSystemPrompt frames the technology advisor role.
func selectionSystemPrompt() string {
	return `You are choosing one technology option for a hackathon project from a fixed list.

## Output Format

` + "```json" + `
{
  "stack": "GORM",
  "reason": "Mature ORM with migrations built in, fits the team's Go experience"
}
` + "```" + `

## Guidelines

- Pick exactly one option, by its listed name
- Weigh hackathon constraints: setup time and learning curve beat raw capability
- Base claims about the options on the provided references when they cover them`
}

// selectionUserPrompt renders the project and the domain's option set.
func selectionUserPrompt(project *store.Project, domain store.TechDomain, stacks []store.TechStack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n", project.Title)
	if project.Idea != "" {
		fmt.Fprintf(&b, "**Idea:** %s\n", project.Idea)
	}
	fmt.Fprintf(&b, "\n## Decision: %s\n\n%s\n\n## Options\n\n", domain.Name, domain.Description)
	for _, stack := range stacks {
		fmt.Fprintf(&b, "- **%s**: %s\n", stack.Name, stack.Description)
	}
	return b.String()
}
