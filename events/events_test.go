package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSubjects(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		subject string
	}{
		{"structuring started", StructuringStartedEvent{}, "planforge.events.structuring.started"},
		{"structuring completed", StructuringCompletedEvent{}, "planforge.events.structuring.completed"},
		{"structuring failed", StructuringFailedEvent{}, "planforge.events.structuring.failed"},
		{"taskgen completed", TaskGenCompletedEvent{}, "planforge.events.taskgen.completed"},
		{"taskgen failed", TaskGenFailedEvent{}, "planforge.events.taskgen.failed"},
		{"quality accepted", QualityAcceptedEvent{}, "planforge.events.quality.accepted"},
		{"quality exhausted", QualityExhaustedEvent{}, "planforge.events.quality.exhausted"},
		{"job started", JobStartedEvent{}, "planforge.events.jobs.started"},
		{"job unit completed", JobUnitCompletedEvent{}, "planforge.events.jobs.unit_completed"},
		{"job completed", JobCompletedEvent{}, "planforge.events.jobs.completed"},
		{"job failed", JobFailedEvent{}, "planforge.events.jobs.failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.subject, tt.event.Subject())
		})
	}
}

func TestStructuringCompletedEventMarshal(t *testing.T) {
	projectID := uuid.New()
	event := StructuringCompletedEvent{
		ProjectID:     projectID,
		AreaCount:     4,
		FunctionCount: 12,
		Iterations:    2,
		Coverage:      0.85,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, projectID.String(), decoded["project_id"])
	assert.Equal(t, float64(4), decoded["area_count"])
	assert.Equal(t, float64(12), decoded["function_count"])
	assert.Equal(t, 0.85, decoded["coverage"])

	// needs_clarity is omitted when false.
	_, present := decoded["needs_clarity"]
	assert.False(t, present)
}
