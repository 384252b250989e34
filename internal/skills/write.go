package skills

import (
	"context"
	"fmt"
	"strings"

	"prodagent/internal/confidence"
	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
	"prodagent/internal/manifest"
	"prodagent/internal/merge"
)

// Edit-plan payloads as the model produces them: the merge plan plus the
// model's own confidence in it.
type listPlanPayload struct {
	merge.ListPlan
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type metricsPlanPayload struct {
	merge.MetricsPlan
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type solutionPlanPayload struct {
	merge.SolutionPlan
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

func (r *Runner) runWriteSection(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode) (*contracts.SkillResult, error) {
	kind, ok := r.registry.Kind(rc.Request.ArtifactKind)
	if !ok {
		return nil, fmt.Errorf("unknown artifact kind %q", rc.Request.ArtifactKind)
	}
	spec, ok := kind.Section(node.Task.Section)
	if !ok {
		return nil, fmt.Errorf("node %s writes unknown section %q", node.ID, node.Task.Section)
	}

	state := r.states.Get(rc.RunID)
	r.seedState(rc, state)
	analysis := state.Analysis()
	existing, populated := state.Section(spec.Name)
	if !populated {
		existing = nil
	}

	req := generation.Request{
		System: systemPrompt,
		Prompt: writeSectionPrompt(rc, spec, analysis, existing),
	}

	var (
		merged       any
		modelLevel   confidence.Level
		modelReasons []string
		usage        contracts.Usage
		err          error
	)

	switch spec.Shape {
	case manifest.ShapeObject:
		var payload solutionPlanPayload
		usage, err = generation.GenerateJSON(ctx, r.gen, req, &payload, r.maxRepairs)
		if err != nil {
			return nil, err
		}
		var current *contracts.Solution
		if existing != nil {
			current, _ = existing.(*contracts.Solution)
		}
		merged = merge.ApplySolution(current, payload.SolutionPlan)
		modelLevel = confidence.Parse(payload.Confidence)
		modelReasons = payload.Reasons

	case manifest.ShapeMetrics:
		var payload metricsPlanPayload
		usage, err = generation.GenerateJSON(ctx, r.gen, req, &payload, r.maxRepairs)
		if err != nil {
			return nil, err
		}
		var current []contracts.Metric
		if existing != nil {
			current, _ = existing.([]contracts.Metric)
		}
		merged = merge.ApplyMetrics(current, payload.MetricsPlan)
		modelLevel = confidence.Parse(payload.Confidence)
		modelReasons = payload.Reasons

	default:
		var payload listPlanPayload
		usage, err = generation.GenerateJSON(ctx, r.gen, req, &payload, r.maxRepairs)
		if err != nil {
			return nil, err
		}
		var current []string
		if existing != nil {
			current, _ = existing.([]string)
		}
		merged = merge.ApplyList(current, payload.ListPlan)
		modelLevel = confidence.Parse(payload.Confidence)
		modelReasons = payload.Reasons
	}

	issues := validateSection(spec, merged)

	assessment := confidence.Assess(confidence.Signals{
		InputCompleteness:  inputCompleteness(rc),
		ContextRichness:    contextRichness(analysis),
		ValidationPassed:   len(issues) == 0,
		ContentSpecificity: contentSpecificity(spec, merged),
	})
	// The model grading its own work can only lower the derived level.
	if confidence.Min(modelLevel, assessment.Level) != assessment.Level {
		assessment.Level = modelLevel
		assessment.Reasons = append(assessment.Reasons, modelReasons...)
	}

	state.SetSection(spec.Name, merged, assessment, issues)
	logging.Merge("run %s: section %s merged, confidence=%s, %d issues",
		rc.RunID, spec.Name, assessment.Level, len(issues))

	return &contracts.SkillResult{
		StepID:     node.ID,
		SkillID:    "write-" + spec.Name,
		Output:     merged,
		Confidence: string(assessment.Level),
		Metadata: map[string]any{
			"section": spec.Name,
			"issues":  issues,
		},
		Usage: &usage,
	}, nil
}

// inputCompleteness scores how much brief the user actually gave, 0..1.
func inputCompleteness(rc *contracts.RunContext) float64 {
	score := float64(len(strings.Fields(rc.Request.Input.Message))) / 60.0
	if score > 0.8 {
		score = 0.8
	}
	if reqCtx := rc.Request.Input.Context; reqCtx != nil {
		if strings.TrimSpace(reqCtx.ContextPayload) != "" {
			score += 0.1
		}
		if len(reqCtx.ConversationHistory) > 0 {
			score += 0.1
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func contextRichness(analysis *ContextAnalysis) float64 {
	if analysis == nil {
		return 0.5
	}
	return analysis.Richness
}

// contentSpecificity estimates how concrete the merged content is, 0..1.
func contentSpecificity(spec manifest.SectionSpec, content any) float64 {
	switch spec.Shape {
	case manifest.ShapeObject:
		solution, _ := content.(*contracts.Solution)
		if solution == nil {
			return 0
		}
		score := float64(len(solution.Summary)) / 120.0
		if len(solution.Differentiators) > 0 {
			score += 0.2
		}
		if score > 1 {
			score = 1
		}
		return score
	case manifest.ShapeMetrics:
		metrics, _ := content.([]contracts.Metric)
		if len(metrics) == 0 {
			return 0
		}
		withTargets := 0
		for _, m := range metrics {
			if strings.TrimSpace(m.Target) != "" {
				withTargets++
			}
		}
		return float64(withTargets) / float64(len(metrics))
	default:
		items, _ := content.([]string)
		if len(items) == 0 {
			return 0
		}
		words := 0
		for _, item := range items {
			words += len(strings.Fields(item))
		}
		score := float64(words) / float64(len(items)) / 5.0
		if score > 1 {
			score = 1
		}
		return score
	}
}
