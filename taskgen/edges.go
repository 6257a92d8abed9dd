package taskgen

import (
	"github.com/google/uuid"

	"github.com/planforge/planforge/store"
)

// SelectEdges maps function-level dependency edges onto task-level edges
// with the fixed-index rule: the LAST task of the prerequisite (source)
// function's ordered list blocks the FIRST task of the dependent (target)
// function's list. The rule is a pure function of the inputs, so the edge
// set is identical across runs regardless of the order the dependency list
// arrives in. Degree-based selection is deliberately not used: picking the
// least- or most-connected task re-ranks as edges accumulate, which makes
// the result depend on iteration order.
//
// "relates" edges carry no ordering semantics and produce no task edge.
// Edges whose endpoints generated no tasks are dropped, and duplicate
// task pairs collapse to one edge.
func SelectEdges(deps []store.FunctionDependency, tasksByFunction map[uuid.UUID][]store.Task) []store.TaskDependency {
	type pair struct{ src, dst uuid.UUID }
	seen := make(map[pair]bool, len(deps))

	var edges []store.TaskDependency
	for _, d := range deps {
		if d.DependencyType == store.DependencyRelates {
			continue
		}
		srcTasks := tasksByFunction[d.SourceFunctionID]
		dstTasks := tasksByFunction[d.TargetFunctionID]
		if len(srcTasks) == 0 || len(dstTasks) == 0 {
			continue
		}

		source := srcTasks[len(srcTasks)-1]
		target := dstTasks[0]
		if source.ID == target.ID {
			continue
		}
		p := pair{source.ID, target.ID}
		if seen[p] {
			continue
		}
		seen[p] = true

		edges = append(edges, store.TaskDependency{
			ProjectID:    d.ProjectID,
			SourceTaskID: source.ID,
			TargetTaskID: target.ID,
			SourceNodeID: source.ID.String(),
			TargetNodeID: target.ID.String(),
			IsAnimated:   false,
			IsNextDay:    false,
		})
	}
	return edges
}
