package skills

import (
	"context"
	"strings"

	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
)

func (r *Runner) runAnalyzeContext(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode) (*contracts.SkillResult, error) {
	var analysis ContextAnalysis
	usage, err := generation.GenerateJSON(ctx, r.gen, generation.Request{
		System: systemPrompt,
		Prompt: analyzePrompt(rc),
	}, &analysis, r.maxRepairs)
	if err != nil {
		return nil, err
	}

	analysis.Summary = strings.TrimSpace(analysis.Summary)
	analysis.KeyPoints = trimAll(analysis.KeyPoints)
	analysis.Assumptions = trimAll(analysis.Assumptions)
	if analysis.Richness < 0 {
		analysis.Richness = 0
	}
	if analysis.Richness > 1 {
		analysis.Richness = 1
	}

	state := r.states.Get(rc.RunID)
	state.SetAnalysis(&analysis)
	r.seedState(rc, state)

	logging.SkillsDebug("run %s: context analysis richness=%.2f, %d key points, %d assumptions",
		rc.RunID, analysis.Richness, len(analysis.KeyPoints), len(analysis.Assumptions))

	confidenceLevel := "medium"
	if analysis.Richness >= 0.7 {
		confidenceLevel = "high"
	} else if analysis.Richness < 0.3 {
		confidenceLevel = "low"
	}

	return &contracts.SkillResult{
		StepID:     node.ID,
		SkillID:    string(contracts.TaskAnalyzeContext),
		Output:     &analysis,
		Confidence: confidenceLevel,
		Usage:      &usage,
	}, nil
}

// seedState copies an existing PRD into the run state once, so section
// writers edit the prior document rather than starting blank.
func (r *Runner) seedState(rc *contracts.RunContext, state *RunState) {
	reqCtx := rc.Request.Input.Context
	if reqCtx == nil || reqCtx.ExistingPRD == nil {
		return
	}
	doc, err := contracts.DecodePRDocument(reqCtx.ExistingPRD)
	if err != nil {
		logging.SkillsWarn("run %s: existing PRD unusable, starting fresh: %v", rc.RunID, err)
		return
	}
	if state.SeedFromPRD(doc) {
		logging.SkillsDebug("run %s: seeded working document from artifact %s", rc.RunID, reqCtx.ExistingPRD.ID)
	}
}
