package quality

import (
	"fmt"
	"strings"
)

// consistencySystemPrompt frames the intra-layer consistency reviewer.
func consistencySystemPrompt() string {
	return `You are reviewing a project's task list for technical consistency within each layer.

Tasks are grouped by category (auth, data, logic, ui, api, deployment). Within each group, look for:
- contradictions: two tasks that prescribe incompatible approaches
- duplication: two tasks covering the same work
- missing glue: work a task presumes but no task provides

## Output Format

` + "```json" + `
{
  "score": 0.85,
  "issues": [
    {
      "severity": "high",
      "category": "data",
      "description": "Two tasks both create the recipes table",
      "suggested_action": "Merge the duplicate migration tasks",
      "task_titles": ["Create recipes table", "Add recipes migration"]
    }
  ]
}
` + "```" + `

Severity is one of critical, high, medium, low. Score is the fraction of the task set free of consistency problems, between 0 and 1. Report no issues and a score of 1.0 for a clean set.`
}

// consistencyUserPrompt renders the snapshot grouped by category.
func consistencyUserPrompt(snap *snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n\n## Tasks by category\n", snap.project.Title)

	byCategory := map[string][]int{}
	var order []string
	for i, t := range snap.tasks {
		cat := t.Category
		if cat == "" {
			cat = "uncategorized"
		}
		if _, seen := byCategory[cat]; !seen {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], i)
	}
	for _, cat := range order {
		fmt.Fprintf(&b, "\n### %s\n\n", cat)
		for _, i := range byCategory[cat] {
			t := snap.tasks[i]
			fmt.Fprintf(&b, "- **%s** (%s, %.1fh): %s\n", t.Title, t.Priority, t.EstimatedHours, t.Description)
		}
	}
	return b.String()
}

// completenessSystemPrompt frames the domain completeness reviewer.
func completenessSystemPrompt() string {
	return `You are reviewing whether a project's task list fully implements its structured functions.

For each function, decide whether the tasks assigned to it (and the unassigned tasks) cover everything the function's description requires. A function with required behavior no task delivers is a gap.

## Output Format

` + "```json" + `
{
  "score": 0.7,
  "issues": [
    {
      "severity": "critical",
      "category": "auth",
      "description": "F001 requires password reset but no task implements the reset email flow",
      "suggested_action": "Add a task implementing the password reset email and token check"
    }
  ]
}
` + "```" + `

Severity is one of critical, high, medium, low; a Must-priority function with no covering tasks is critical. Score is the fraction of function requirements the task set covers, between 0 and 1.`
}

// completenessUserPrompt renders functions beside their assigned tasks.
func completenessUserPrompt(snap *snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n\n## Functions\n", snap.project.Title)

	byFunction := map[string][]string{}
	var unassigned []string
	for _, t := range snap.tasks {
		if t.FunctionID == nil {
			unassigned = append(unassigned, t.Title)
			continue
		}
		key := t.FunctionID.String()
		byFunction[key] = append(byFunction[key], t.Title)
	}
	for _, f := range snap.functions {
		fmt.Fprintf(&b, "\n### %s: %s (%s, %s)\n\n%s\n", f.FunctionCode, f.FunctionName, f.Category, f.Priority, f.Description)
		titles := byFunction[f.ID.String()]
		if len(titles) == 0 {
			b.WriteString("\nAssigned tasks: none\n")
			continue
		}
		b.WriteString("\nAssigned tasks:\n")
		for _, title := range titles {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}
	if len(unassigned) > 0 {
		b.WriteString("\n## Tasks not assigned to any function\n\n")
		for _, title := range unassigned {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}
	return b.String()
}

// correctionSystemPrompt frames the corrective modification writer.
func correctionSystemPrompt() string {
	return `You are fixing specific issues found in a project's task list.

For each issue, either edit an existing task or add a new one. Reference the issue you are fixing by its key. Do not touch tasks no issue mentions.

## Output Format

` + "```json" + `
{
  "edits": [
    {
      "issue_key": "9f2c1a4d0b7e6f31",
      "task_title": "Create recipes table",
      "new_description": "Create the recipes table including the author foreign key the detail page needs"
    }
  ],
  "new_tasks": [
    {
      "issue_key": "5a1b9c3d2e4f6a70",
      "title": "Implement the password reset email flow",
      "description": "Send the reset token email and verify it on the confirmation endpoint",
      "function_code": "F001",
      "estimated_hours": 3
    }
  ]
}
` + "```" + `

## Guidelines

- One correction per issue, edit before add when an existing task can absorb the fix
- New tasks name the function they implement by its code when one applies
- Leave fields you are not changing out of edits`
}

// correctionUserPrompt renders the open issues beside the current tasks.
func correctionUserPrompt(snap *snapshot, open []Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Project:** %s\n\n## Open Issues\n\n", snap.project.Title)
	for _, issue := range open {
		fmt.Fprintf(&b, "- key=%s [%s/%s] %s", issue.Key(), issue.Severity, issue.Axis, issue.Description)
		if issue.SuggestedAction != "" {
			fmt.Fprintf(&b, " (suggestion: %s)", issue.SuggestedAction)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Current Tasks\n\n")
	for _, t := range snap.tasks {
		fmt.Fprintf(&b, "- **%s** (%s, %s): %s\n", t.Title, t.Category, t.Priority, t.Description)
	}

	b.WriteString("\n## Functions\n\n")
	for _, f := range snap.functions {
		fmt.Fprintf(&b, "- %s: %s (%s, %s)\n", f.FunctionCode, f.FunctionName, f.Category, f.Priority)
	}
	return b.String()
}
