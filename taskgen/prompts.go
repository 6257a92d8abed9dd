package taskgen

import (
	"fmt"
	"strings"

	"github.com/planforge/planforge/store"
)

// taskSystemPrompt frames the task writer role.
func taskSystemPrompt(batchSize int) string {
	return fmt.Sprintf(`You are breaking one software function down into implementation tasks for a hackathon team.

## Your Objective

Produce between 1 and %d concrete tasks that together implement the function. Each task is one sitting of work for one developer.

## Output Format

`+"```json"+`
{
  "tasks": [
    {
      "title": "Create the users table and model",
      "description": "Add the users table migration with email and password hash columns, and the corresponding model",
      "estimated_hours": 2
    }
  ]
}
`+"```"+`

## Guidelines

- Order tasks so each builds on the previous ones
- Titles start with a verb and name the artifact being changed
- Estimate in whole or half hours, between 0.5 and 8
- Do not invent work beyond the function's description`, batchSize)
}

// taskUserPrompt carries the function and its project context.
func taskUserPrompt(project *store.Project, fn store.StructuredFunction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n", project.Title)
	if project.Idea != "" {
		fmt.Fprintf(&b, "**Idea:** %s\n", project.Idea)
	}
	fmt.Fprintf(&b, "\n## Function %s: %s\n\n", fn.FunctionCode, fn.FunctionName)
	fmt.Fprintf(&b, "- Category: %s\n", fn.Category)
	fmt.Fprintf(&b, "- Priority: %s\n", fn.Priority)
	if fn.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", fn.Description)
	}
	return b.String()
}
