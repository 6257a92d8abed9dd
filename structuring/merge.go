package structuring

import (
	"strings"
	"unicode"
)

// MergeState is the accumulated project-level union of per-area extraction
// results across iterations.
type MergeState struct {
	Functions    []ExtractedFunction
	Dependencies []ExtractedDependency
}

// mergeResults unions new area results into prev. The union is keyed by
// normalized function name so the outcome does not depend on which order
// the areas completed in: the highest-confidence duplicate wins, mentions
// are combined, and dependency edges are re-resolved against the surviving
// names. Dangling and self-referential edges are dropped, duplicate edges
// collapse.
func mergeResults(prev MergeState, results []AreaResult) MergeState {
	merged := MergeState{Functions: append([]ExtractedFunction(nil), prev.Functions...)}
	index := make(map[string]int, len(merged.Functions))
	for i, f := range merged.Functions {
		index[normalizeName(f.Name)] = i
	}

	for _, res := range results {
		for _, f := range res.Functions {
			key := normalizeName(f.Name)
			i, seen := index[key]
			if !seen {
				index[key] = len(merged.Functions)
				merged.Functions = append(merged.Functions, f)
				continue
			}
			existing := &merged.Functions[i]
			mentions := mergeMentions(existing.Mentions, f.Mentions)
			if f.Confidence > existing.Confidence {
				*existing = f
			}
			existing.Mentions = mentions
		}
	}

	type edgeKey struct{ src, dst, typ string }
	seen := make(map[edgeKey]bool)
	keep := func(d ExtractedDependency) {
		src, dst := normalizeName(d.Source), normalizeName(d.Target)
		if src == dst {
			return
		}
		if _, ok := index[src]; !ok {
			return
		}
		if _, ok := index[dst]; !ok {
			return
		}
		k := edgeKey{src, dst, d.Type}
		if seen[k] {
			return
		}
		seen[k] = true
		merged.Dependencies = append(merged.Dependencies, d)
	}
	for _, d := range prev.Dependencies {
		keep(d)
	}
	for _, res := range results {
		for _, d := range res.Dependencies {
			keep(d)
		}
	}

	return merged
}

func mergeMentions(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, m := range append(append([]string(nil), a...), b...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// normalizeName canonicalizes a function name for deduplication: lowercase,
// punctuation stripped, whitespace collapsed. Hyphens and underscores count
// as word separators so "user-login" and "User Login" collide.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
