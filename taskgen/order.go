package taskgen

import (
	"sort"

	"github.com/google/uuid"

	"github.com/planforge/planforge/store"
)

// RecommendOrder computes an implementation order over the project's
// functions as a list of function codes. Kahn's algorithm drains nodes in
// dependency order, taking the lexicographically smallest code among the
// ready nodes so the result is deterministic. Nodes a cycle keeps blocked
// are appended afterwards in priority order (Must first, Wont last, ties by
// code) instead of erroring: the recommendation degrades, it never hangs.
func RecommendOrder(functions []store.StructuredFunction, deps []store.FunctionDependency) []string {
	if len(functions) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]store.StructuredFunction, len(functions))
	inDegree := make(map[uuid.UUID]int, len(functions))
	for _, fn := range functions {
		byID[fn.ID] = fn
		inDegree[fn.ID] = 0
	}

	successors := make(map[uuid.UUID][]uuid.UUID)
	type pair struct{ src, dst uuid.UUID }
	seen := make(map[pair]bool, len(deps))
	for _, d := range deps {
		if d.DependencyType == store.DependencyRelates {
			continue
		}
		if _, ok := byID[d.SourceFunctionID]; !ok {
			continue
		}
		if _, ok := byID[d.TargetFunctionID]; !ok {
			continue
		}
		p := pair{d.SourceFunctionID, d.TargetFunctionID}
		if p.src == p.dst || seen[p] {
			continue
		}
		seen[p] = true
		successors[p.src] = append(successors[p.src], p.dst)
		inDegree[p.dst]++
	}

	var ready []uuid.UUID
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(functions))
	placed := make(map[uuid.UUID]bool, len(functions))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return byID[ready[i]].FunctionCode < byID[ready[j]].FunctionCode
		})
		id := ready[0]
		ready = ready[1:]

		order = append(order, byID[id].FunctionCode)
		placed[id] = true
		for _, next := range successors[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) == len(functions) {
		return order
	}

	// Cycle fallback: the unplaced remainder sorts by priority, then code.
	var blocked []store.StructuredFunction
	for _, fn := range functions {
		if !placed[fn.ID] {
			blocked = append(blocked, fn)
		}
	}
	sort.Slice(blocked, func(i, j int) bool {
		ri, rj := store.PriorityRank(blocked[i].Priority), store.PriorityRank(blocked[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return blocked[i].FunctionCode < blocked[j].FunctionCode
	})
	for _, fn := range blocked {
		order = append(order, fn.FunctionCode)
	}
	return order
}
