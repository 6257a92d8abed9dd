// Package model provides capability-based model selection for generation
// stages. Instead of hardcoding model names, workflows specify capabilities
// (structuring, analysis, writing, fast) and the registry resolves them to
// available models with fallback chains.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying "claude-sonnet", callers specify "structuring" or
// "writing".
type Capability string

const (
	// CapabilityStructuring is for extraction planning and requirement
	// decomposition.
	CapabilityStructuring Capability = "structuring"

	// CapabilityAnalysis is for evaluation: coverage scoring, consistency
	// and completeness review.
	CapabilityAnalysis Capability = "analysis"

	// CapabilityWriting is for long-form structured generation: task
	// batches, guides, corrections.
	CapabilityWriting Capability = "writing"

	// CapabilityFast is for quick classification calls: categorize,
	// prioritize, information planning.
	CapabilityFast Capability = "fast"
)

// StageCapabilities maps workflow stages to their default capability.
// Used when no explicit capability is specified.
var StageCapabilities = map[string]Capability{
	"plan":         CapabilityStructuring,
	"extract":      CapabilityStructuring,
	"categorize":   CapabilityFast,
	"prioritize":   CapabilityFast,
	"analyze-deps": CapabilityAnalysis,
	"coverage":     CapabilityAnalysis,
	"evaluate":     CapabilityAnalysis,
	"improve":      CapabilityWriting,
	"taskgen":      CapabilityWriting,
	"guide":        CapabilityWriting,
	"info-plan":    CapabilityFast,
}

// CapabilityForStage returns the default capability for a workflow stage.
// Returns CapabilityFast as fallback for unknown stages.
func CapabilityForStage(stage string) Capability {
	if cap, ok := StageCapabilities[stage]; ok {
		return cap
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityStructuring, CapabilityAnalysis, CapabilityWriting, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
