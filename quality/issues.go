package quality

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// Issue severities, in rank order.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Evaluation axes.
const (
	AxisConsistency  = "consistency"
	AxisCompleteness = "completeness"
)

// Issue is one finding from either evaluation axis.
type Issue struct {
	Severity        string   `json:"severity"`
	Category        string   `json:"category,omitempty"`
	Description     string   `json:"description"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
	TaskTitles      []string `json:"task_titles,omitempty"`
	Axis            string   `json:"-"`
}

// Key identifies an issue across iterations by its normalized description,
// so re-detected findings dedupe and a correction is applied at most once.
func (i Issue) Key() string {
	sum := sha256.Sum256([]byte(normalizeText(i.Description)))
	return hex.EncodeToString(sum[:8])
}

// severityRank orders severities; lower is more severe. Unknown values sort
// last and are treated as low.
func severityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// Consolidate dedupes near-identical findings across the two axes, keeping
// the most severe copy of each, and sorts the result by severity then
// description. Issues with empty descriptions or unknown severities are
// normalized rather than dropped.
func Consolidate(issues []Issue) []Issue {
	byKey := make(map[string]Issue, len(issues))
	for _, issue := range issues {
		issue.Description = strings.TrimSpace(issue.Description)
		if issue.Description == "" {
			continue
		}
		if severityRank(issue.Severity) > 3 {
			issue.Severity = SeverityLow
		}
		key := issue.Key()
		prev, seen := byKey[key]
		if !seen || severityRank(issue.Severity) < severityRank(prev.Severity) {
			byKey[key] = issue
		}
	}

	out := make([]Issue, 0, len(byKey))
	for _, issue := range byKey {
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank(out[i].Severity), severityRank(out[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return out[i].Description < out[j].Description
	})
	return out
}

func countSeverity(issues []Issue, severity string) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == severity {
			n++
		}
	}
	return n
}

// normalizeText lowercases and collapses non-alphanumeric runs so trivially
// reworded duplicates hash alike.
func normalizeText(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
