package structuring

import (
	"fmt"
	"strings"

	"github.com/planforge/planforge/store"
)

// planSystemPrompt frames the extraction planner role.
func planSystemPrompt() string {
	return `You are planning the extraction of structured functions from a software project's requirement document.

## Your Objective

Partition the requirement document into disjoint focus areas that can be analyzed independently. Each area covers one topical slice of the document (for example "auth", "data management", "UI").

## Output Format

` + "```json" + `
{
  "focus_areas": [
    {
      "name": "auth",
      "description": "Login, registration, and session handling requirements",
      "hints": ["sign up", "password reset"]
    }
  ]
}
` + "```" + `

## Guidelines

- Areas must not overlap: each requirement belongs to exactly one area
- Name areas after the document's own vocabulary
- Hints quote the document phrases that anchor the area
- Prefer fewer, broader areas over many narrow ones`
}

// planUserPrompt carries the document and, on a replan round, the coverage
// feedback that invalidated the previous plan.
func planUserPrompt(title, idea, requirement, feedback string, maxAreas int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Partition this requirement document into at most %d focus areas.\n\n", maxAreas)
	fmt.Fprintf(&b, "**Project:** %s\n", title)
	if idea != "" {
		fmt.Fprintf(&b, "**Idea:** %s\n", idea)
	}
	if feedback != "" {
		fmt.Fprintf(&b, "\nA previous plan did not cover the document adequately. Reviewer feedback:\n%s\n", feedback)
	}
	fmt.Fprintf(&b, "\n## Requirement Document\n\n%s\n", requirement)
	return b.String()
}

// extractSystemPrompt frames the per-area function extractor role.
func extractSystemPrompt() string {
	return `You are extracting structured functions from a requirement document.

A function is one coherent capability the software must provide, described from the user's or the system's perspective.

## Output Format

` + "```json" + `
{
  "functions": [
    {
      "name": "User registration",
      "description": "Visitors create an account with email and password",
      "mentions": ["users can sign up with their email address"],
      "confidence": 0.9
    }
  ]
}
` + "```" + `

## Guidelines

- Extract only functions belonging to the assigned focus area
- Quote the document phrases that evidence each function in mentions
- confidence is your certainty in [0,1] that the function is really required
- Do not invent functions the document never implies`
}

func extractUserPrompt(area FocusArea, requirement string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract the functions belonging to the focus area %q.\n\n", area.Name)
	if area.Description != "" {
		fmt.Fprintf(&b, "**Area:** %s\n", area.Description)
	}
	if len(area.Hints) > 0 {
		fmt.Fprintf(&b, "**Hints:** %s\n", strings.Join(area.Hints, "; "))
	}
	fmt.Fprintf(&b, "\n## Requirement Document\n\n%s\n", requirement)
	return b.String()
}

func categorizePrompt(functions []ExtractedFunction) string {
	var b strings.Builder
	b.WriteString("Assign a category to each function. Valid categories: auth, data, logic, ui, api, deployment.\n\n")
	for _, f := range functions {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	b.WriteString(`
Respond with JSON:

{"assignments": [{"name": "<function name>", "category": "<category>"}]}
`)
	return b.String()
}

func prioritizePrompt(functions []ExtractedFunction) string {
	var b strings.Builder
	b.WriteString("Assign a MoSCoW priority to each function. Valid priorities: Must, Should, Could, Wont.\n\n")
	for _, f := range functions {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	b.WriteString(`
Respond with JSON:

{"assignments": [{"name": "<function name>", "priority": "<priority>"}]}
`)
	return b.String()
}

func dependenciesPrompt(area FocusArea, functions []ExtractedFunction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Identify dependencies between these functions of the focus area %q.\n\n", area.Name)
	for _, f := range functions {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
	}
	b.WriteString(`
A dependency "A requires B" means B must exist before A can work. Valid types: requires, blocks, relates.

Respond with JSON:

{"dependencies": [{"source": "<function name>", "target": "<function name>", "type": "requires", "reason": "<why>"}]}

Only report dependencies you are confident about. An empty list is a valid answer.
`)
	return b.String()
}

// coverageSystemPrompt frames the coverage analyst role.
func coverageSystemPrompt() string {
	return `You are judging whether a set of extracted functions fully represents a requirement document.

## Output Format

` + "```json" + `
{
  "score": 0.85,
  "classification": "complete",
  "uncovered_areas": ["notification settings"],
  "feedback": "The document's notification section produced no functions"
}
` + "```" + `

## Guidelines

- score is the fraction of the document's intent represented, in [0,1]
- classification is "complete" when nothing material is missing, "continue" when specific areas need another extraction pass, "replan" when the focus areas themselves missed the document's structure
- uncovered_areas names the document topics that lack functions
- feedback explains what is missing, for the next round`
}

func coverageUserPrompt(requirement string, functions []ExtractedFunction) string {
	var b strings.Builder
	b.WriteString("Assess how completely these extracted functions cover the requirement document.\n\n## Extracted Functions\n\n")
	if len(functions) == 0 {
		b.WriteString("(none)\n")
	}
	for _, f := range functions {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", f.Name, f.Category, f.Priority, f.Description)
		for _, m := range f.Mentions {
			fmt.Fprintf(&b, "  > %s\n", m)
		}
	}
	fmt.Fprintf(&b, "\n## Requirement Document\n\n%s\n", requirement)
	return b.String()
}

// clarifySystemPrompt frames the clarification writer role.
func clarifySystemPrompt() string {
	return `You write short clarification questions for software requirements that were extracted with low confidence. Each question should let a non-technical project owner confirm or correct one function.

## Output Format

` + "```json" + `
{
  "questions": [
    {
      "function_code": "F003",
      "question": "Should password reset work over email, SMS, or both?",
      "reason": "The document mentions reset links but not the channel"
    }
  ]
}
` + "```"
}

func clarifyUserPrompt(title string, functions []store.StructuredFunction, maxQuestions int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write at most %d clarification questions for these low-confidence functions of the project %q.\n\n", maxQuestions, title)
	for _, f := range functions {
		fmt.Fprintf(&b, "- %s %s (confidence %.2f): %s\n", f.FunctionCode, f.FunctionName, f.ExtractionConfidence, f.Description)
	}
	return b.String()
}
