package merge

import (
	"strings"

	"prodagent/internal/contracts"
)

// SolutionPlan is an edit plan for the object-shaped solution section.
// Text fields merge 1:1: a non-empty proposed field overwrites the existing
// one, an empty field leaves it alone. Replace mode swaps the whole object.
type SolutionPlan struct {
	Mode     Mode                `json:"mode"`
	Proposed *contracts.Solution `json:"proposed,omitempty"`
}

// IsNoop reports whether applying the plan can change nothing.
func (p SolutionPlan) IsNoop() bool {
	return p.Proposed == nil
}

// ApplySolution merges a solution plan into existing solution content.
func ApplySolution(existing *contracts.Solution, plan SolutionPlan) *contracts.Solution {
	if plan.Proposed == nil {
		if existing == nil {
			return nil
		}
		clone := sanitizeSolution(*existing)
		return &clone
	}

	proposed := sanitizeSolution(*plan.Proposed)

	if existing == nil || NormalizeMode(string(plan.Mode)) == ModeReplace {
		return &proposed
	}

	out := sanitizeSolution(*existing)
	if proposed.Summary != "" {
		out.Summary = proposed.Summary
	}
	if proposed.Approach != "" {
		out.Approach = proposed.Approach
	}
	if len(proposed.Differentiators) > 0 {
		out.Differentiators = dedupeList(append(out.Differentiators, proposed.Differentiators...))
	}
	return &out
}

func sanitizeSolution(s contracts.Solution) contracts.Solution {
	s.Summary = strings.TrimSpace(s.Summary)
	s.Approach = strings.TrimSpace(s.Approach)
	s.Differentiators = dedupeList(sanitizeList(s.Differentiators))
	return s
}
