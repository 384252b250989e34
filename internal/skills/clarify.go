package skills

import (
	"context"
	"strings"

	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
)

// MetaNeedsClarification marks a clarification-check result that should
// interrupt the run.
const MetaNeedsClarification = "needs_clarification"

// clarificationPayload is the model's answer to the clarification check.
type clarificationPayload struct {
	NeedsClarification bool     `json:"needs_clarification"`
	Questions          []string `json:"questions"`
	Reason             string   `json:"reason"`
}

func (r *Runner) runClarificationCheck(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode) (*contracts.SkillResult, error) {
	result := &contracts.SkillResult{
		StepID:  node.ID,
		SkillID: string(contracts.TaskClarificationCheck),
	}

	// A resumed run already carries the user's answers; never ask twice.
	if answered, ok := rc.Metadata["clarification_answered"].(bool); ok && answered {
		logging.SkillsDebug("run %s: clarification already answered, passing through", rc.RunID)
		result.Confidence = "high"
		result.Metadata = map[string]any{MetaNeedsClarification: false}
		return result, nil
	}

	var payload clarificationPayload
	usage, err := generation.GenerateJSON(ctx, r.gen, generation.Request{
		System: systemPrompt,
		Prompt: clarificationPrompt(rc),
	}, &payload, r.maxRepairs)
	if err != nil {
		return nil, err
	}
	result.Usage = &usage

	questions := trimAll(payload.Questions)
	if payload.NeedsClarification && len(questions) == 0 {
		// A model that flags ambiguity but asks nothing has nothing for the
		// user to answer; treat it as sufficient input.
		logging.SkillsWarn("run %s: clarification flagged with no questions, continuing", rc.RunID)
		payload.NeedsClarification = false
	}
	if len(questions) > 3 {
		questions = questions[:3]
	}

	result.Metadata = map[string]any{MetaNeedsClarification: payload.NeedsClarification}
	if payload.NeedsClarification {
		result.Confidence = "low"
		result.Output = &contracts.Clarification{
			Questions: questions,
			Reason:    strings.TrimSpace(payload.Reason),
		}
		logging.Skills("run %s: input needs clarification (%d questions)", rc.RunID, len(questions))
	} else {
		result.Confidence = "high"
	}
	return result, nil
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
