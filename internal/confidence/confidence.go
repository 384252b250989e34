// Package confidence implements the categorical confidence model used to
// grade generated sections and to roll section grades up into one overall
// rating for an artifact.
package confidence

import "strings"

// Level is a categorical confidence rating.
type Level string

const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

// rank orders levels for comparisons. Unknown strings rank lowest.
func rank(l Level) int {
	switch l {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	}
	return 0
}

// Min returns the weaker of two levels.
func Min(a, b Level) Level {
	if rank(a) < rank(b) {
		return a
	}
	return b
}

// Parse normalizes a level string, defaulting to Medium for anything
// unrecognized. Generation output is not trusted to spell levels correctly.
func Parse(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High
	case "low":
		return Low
	case "medium", "moderate", "":
		return Medium
	}
	return Medium
}

// Assessment is a level plus the reasons behind it. Derived, never
// persisted independently; recomputed whenever a section or run completes.
type Assessment struct {
	Level   Level              `json:"level"`
	Reasons []string           `json:"reasons,omitempty"`
	Factors map[string]float64 `json:"factors,omitempty"`
}

// Signals are the inputs an assessment is derived from.
type Signals struct {
	InputCompleteness  float64 // 0..1, how much of the brief was usable
	ContextRichness    float64 // 0..1, how much supporting context existed
	ValidationPassed   bool
	ContentSpecificity float64 // 0..1, specificity of the generated content
}

// Assess derives an assessment from raw signals. Thresholds are coarse on
// purpose: the rating is a triage hint, not a score.
func Assess(s Signals) Assessment {
	score := 0.4*s.InputCompleteness + 0.3*s.ContextRichness + 0.3*s.ContentSpecificity
	reasons := make([]string, 0, 4)
	if s.InputCompleteness < 0.5 {
		reasons = append(reasons, "input brief is sparse")
	}
	if s.ContextRichness < 0.3 {
		reasons = append(reasons, "little supporting context available")
	}
	if !s.ValidationPassed {
		score -= 0.2
		reasons = append(reasons, "section validation reported issues")
	}
	if s.ContentSpecificity >= 0.7 {
		reasons = append(reasons, "content is specific and actionable")
	}

	level := Medium
	switch {
	case score >= 0.7 && s.ValidationPassed:
		level = High
	case score < 0.4:
		level = Low
	}

	return Assessment{
		Level:   level,
		Reasons: reasons,
		Factors: map[string]float64{
			"input_completeness":  s.InputCompleteness,
			"context_richness":    s.ContextRichness,
			"content_specificity": s.ContentSpecificity,
		},
	}
}

// Combine rolls several section assessments into one overall assessment.
//
// Rules: all high stays high; a strict majority of low pulls the overall to
// low; a high majority with no lows stays high; everything else lands on
// medium. Reasons aggregate the per-section reasons of the dominant levels.
func Combine(sections map[string]Assessment) Assessment {
	if len(sections) == 0 {
		return Assessment{Level: Medium, Reasons: []string{"no section assessments recorded"}}
	}

	var highs, mediums, lows int
	reasons := make([]string, 0, len(sections))
	for name, a := range sections {
		switch a.Level {
		case High:
			highs++
		case Low:
			lows++
			if len(a.Reasons) > 0 {
				reasons = append(reasons, name+": "+a.Reasons[0])
			}
		default:
			mediums++
		}
	}

	total := highs + mediums + lows
	overall := Medium
	switch {
	case lows*2 > total:
		overall = Low
	case highs == total:
		overall = High
	case highs*2 > total && lows == 0:
		overall = High
	}

	if overall == High {
		reasons = append(reasons, "section confidence consistently high")
	}
	if overall == Medium && lows > 0 {
		reasons = append(reasons, "mixed confidence across sections")
	}

	return Assessment{Level: overall, Reasons: reasons}
}

// Weakest returns the lowest level present in the map, Medium when empty.
func Weakest(sections map[string]Assessment) Level {
	weakest := High
	if len(sections) == 0 {
		return Medium
	}
	for _, a := range sections {
		if rank(a.Level) < rank(weakest) {
			weakest = a.Level
		}
	}
	return weakest
}
