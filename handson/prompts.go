package handson

import (
	"fmt"
	"strings"

	"github.com/planforge/planforge/store"
)

// planSystemPrompt frames the information planner role.
func planSystemPrompt() string {
	return `You are planning what information is needed before writing an implementation guide for one task.

Decide, without doing any of the work yet:
- whether the guide needs context from the project's other tasks, and which keywords find them
- whether it needs a specification excerpt, and for which category (auth, data, logic, ui, api, deployment)
- whether current web information would help (up to 3 search queries)
- whether specific documentation pages should be fetched (up to 3 URLs)

## Output Format

` + "```json" + `
{
  "needs_dependency_info": true,
  "dependency_keywords": ["users table", "login"],
  "needs_use_case": true,
  "use_case_category": "auth",
  "search_queries": ["gorm unique index migration"],
  "doc_urls": ["https://gorm.io/docs/indexes.html"],
  "reasoning": "The task builds on the user model task and touches current ORM APIs"
}
` + "```" + `

## Guidelines

- Request only what the guide genuinely needs; every item costs time
- Documentation URLs must point at specific pages, never a site's root or landing page
- Prefer search for anything likely to have changed in the last year`
}

// planUserPrompt carries the task and project summary.
func planUserPrompt(project *store.Project, task *store.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n", project.Title)
	if project.Idea != "" {
		fmt.Fprintf(&b, "**Idea:** %s\n", project.Idea)
	}
	fmt.Fprintf(&b, "\n## Task: %s\n\n", task.Title)
	if task.Category != "" {
		fmt.Fprintf(&b, "- Category: %s\n", task.Category)
	}
	if task.Priority != "" {
		fmt.Fprintf(&b, "- Priority: %s\n", task.Priority)
	}
	if task.EstimatedHours > 0 {
		fmt.Fprintf(&b, "- Estimated hours: %.1f\n", task.EstimatedHours)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	return b.String()
}

// generateSystemPrompt frames the guide writer role.
func generateSystemPrompt() string {
	return `You are writing a hands-on implementation guide for one task of a hackathon project, for a developer who will follow it step by step.

## Output Format

` + "```json" + `
{
  "overview": "What this task builds and how it fits the project",
  "prerequisites": ["The users table task must be done first"],
  "target_files": [
    {"path": "internal/auth/handler.go", "action": "create", "description": "Login endpoint handler"}
  ],
  "implementation_steps": [
    "Define the login request struct with email and password fields",
    "Validate the credentials against the users table"
  ],
  "code_examples": [
    {"title": "Login handler", "language": "go", "code": "func Login(...) { ... }", "explanation": "..."}
  ],
  "verification": ["POST /login with a known user returns 200 and a session cookie"],
  "common_errors": [
    {"error": "unique constraint violation on email", "cause": "seed data reinserted", "solution": "use an upsert for seeds"}
  ],
  "references": ["https://gorm.io/docs/indexes.html"],
  "technical_context": "Why this approach fits the chosen stack",
  "implementation_tips": [
    {"category": "security", "content": "Hash passwords with bcrypt, never store them raw"}
  ]
}
` + "```" + `

## Guidelines

- Keep implementation_steps prose-only; all code belongs in code_examples
- Every common error names its cause and its fix
- Tip categories: best_practice, anti_pattern, gotcha, security, performance
- Ground claims about libraries in the provided context when it covers them`
}

// generateUserPrompt carries the task plus the gathered context block.
func generateUserPrompt(project *store.Project, task *store.Task, contextBlock string) string {
	var b strings.Builder
	b.WriteString(planUserPrompt(project, task))
	if contextBlock != "" {
		b.WriteString("\n---\n\n# Gathered Context\n\n")
		b.WriteString(contextBlock)
		b.WriteString("\n")
	}
	return b.String()
}
