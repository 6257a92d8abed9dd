package taskgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/store"
)

func fn(code, priority string) store.StructuredFunction {
	return store.StructuredFunction{
		ID:           uuid.New(),
		FunctionCode: code,
		FunctionName: "Function " + code,
		Priority:     priority,
	}
}

func requires(src, dst store.StructuredFunction) store.FunctionDependency {
	return store.FunctionDependency{
		SourceFunctionID: src.ID,
		TargetFunctionID: dst.ID,
		DependencyType:   store.DependencyRequires,
	}
}

func TestRecommendOrderTopological(t *testing.T) {
	f1 := fn("F001", store.PriorityMust)
	f2 := fn("F002", store.PriorityMust)
	f3 := fn("F003", store.PriorityShould)
	// F003 depends on F002 depends on F001.
	deps := []store.FunctionDependency{requires(f2, f3), requires(f1, f2)}

	order := RecommendOrder([]store.StructuredFunction{f3, f1, f2}, deps)
	assert.Equal(t, []string{"F001", "F002", "F003"}, order)
}

func TestRecommendOrderIndependentNodesSortByCode(t *testing.T) {
	f1 := fn("F001", store.PriorityCould)
	f2 := fn("F002", store.PriorityMust)
	f3 := fn("F003", store.PriorityShould)

	order := RecommendOrder([]store.StructuredFunction{f2, f3, f1}, nil)
	assert.Equal(t, []string{"F001", "F002", "F003"}, order)
}

func TestRecommendOrderCycleFallsBackToPriority(t *testing.T) {
	// F001 <-> F002 cycle; F003 depends on the cycle; F004 is free.
	f1 := fn("F001", store.PriorityCould)
	f2 := fn("F002", store.PriorityMust)
	f3 := fn("F003", store.PriorityShould)
	f4 := fn("F004", store.PriorityWont)
	deps := []store.FunctionDependency{
		requires(f1, f2), requires(f2, f1), requires(f1, f3),
	}

	order := RecommendOrder([]store.StructuredFunction{f1, f2, f3, f4}, deps)
	require.Len(t, order, 4)
	// F004 drains first (only zero in-degree node), then the blocked
	// remainder in priority order: Must, Should, Could.
	assert.Equal(t, []string{"F004", "F002", "F003", "F001"}, order)
}

func TestRecommendOrderIgnoresRelatesAndDanglingEdges(t *testing.T) {
	f1 := fn("F001", store.PriorityMust)
	f2 := fn("F002", store.PriorityMust)
	ghost := fn("F099", store.PriorityMust)
	deps := []store.FunctionDependency{
		{SourceFunctionID: f2.ID, TargetFunctionID: f1.ID, DependencyType: store.DependencyRelates},
		requires(ghost, f1),
	}

	order := RecommendOrder([]store.StructuredFunction{f1, f2}, deps)
	assert.Equal(t, []string{"F001", "F002"}, order)
}

func TestRecommendOrderEmpty(t *testing.T) {
	assert.Nil(t, RecommendOrder(nil, nil))
}
