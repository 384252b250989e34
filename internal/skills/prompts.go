package skills

import (
	"encoding/json"
	"fmt"
	"strings"

	"prodagent/internal/contracts"
	"prodagent/internal/manifest"
)

const systemPrompt = `You are a senior product manager drafting structured product documents.
You always respond with a single JSON object matching the requested schema, nothing else.`

// promptContext renders the shared preamble: user message, prior
// conversation, pasted context, and the analysis summary when available.
func promptContext(rc *contracts.RunContext, analysis *ContextAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## User request\n%s\n", strings.TrimSpace(rc.Request.Input.Message))

	if reqCtx := rc.Request.Input.Context; reqCtx != nil {
		if len(reqCtx.ConversationHistory) > 0 {
			b.WriteString("\n## Conversation so far\n")
			for _, turn := range reqCtx.ConversationHistory {
				fmt.Fprintf(&b, "%s: %s\n", turn.Role, strings.TrimSpace(turn.Content))
			}
		}
		if payload := strings.TrimSpace(reqCtx.ContextPayload); payload != "" {
			fmt.Fprintf(&b, "\n## Supplied context\n%s\n", payload)
		}
	}

	if analysis != nil && analysis.Summary != "" {
		fmt.Fprintf(&b, "\n## Context analysis\n%s\n", analysis.Summary)
		for _, p := range analysis.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	return b.String()
}

func clarificationPrompt(rc *contracts.RunContext) string {
	var b strings.Builder
	b.WriteString(promptContext(rc, nil))
	b.WriteString(`
## Task
Decide whether the request above contains enough signal to draft a useful document.
Ask for clarification ONLY when the request is so vague that any draft would be guesswork.
A short but concrete request does not need clarification.

Respond with JSON:
{"needs_clarification": bool, "questions": ["..."], "reason": "..."}
Ask at most 3 questions.`)
	return b.String()
}

func analyzePrompt(rc *contracts.RunContext) string {
	var b strings.Builder
	b.WriteString(promptContext(rc, nil))
	b.WriteString(`
## Task
Distill the material above for the writers that follow. Extract what is stated,
note what must be assumed, and score how much usable signal the input carries.

Respond with JSON:
{"summary": "...", "key_points": ["..."], "assumptions": ["..."], "richness": 0.0-1.0}`)
	return b.String()
}

func writeSectionPrompt(rc *contracts.RunContext, spec manifest.SectionSpec, analysis *ContextAnalysis, existing any) string {
	var b strings.Builder
	b.WriteString(promptContext(rc, analysis))

	fmt.Fprintf(&b, "\n## Section: %s (%s)\n", spec.Label, spec.Name)
	if existing != nil {
		if raw, err := json.Marshal(existing); err == nil {
			fmt.Fprintf(&b, "Current content:\n%s\n", raw)
		}
	} else {
		b.WriteString("Current content: empty\n")
	}

	b.WriteString("\n## Task\nPropose an edit plan for this section based on the request.\n")
	b.WriteString(`Modes: "append" adds to current content, "replace" discards it, "smart_merge" reconciles.
Operations act on current items: {"action": "add"|"update"|"remove", "reference": "item to match", "value": "new value"}.
`)

	switch spec.Shape {
	case manifest.ShapeObject:
		b.WriteString(`Respond with JSON:
{"mode": "...", "proposed": {"summary": "...", "approach": "...", "differentiators": ["..."]}, "confidence": "high"|"medium"|"low", "reasons": ["..."]}
The summary must be a complete, specific sentence.`)
	case manifest.ShapeMetrics:
		b.WriteString(`Respond with JSON:
{"mode": "...", "operations": [{"action": "...", "reference": "...", "metric": {"name": "...", "target": "...", "timeframe": "..."}}], "proposed": [{"name": "...", "target": "...", "timeframe": "..."}], "confidence": "high"|"medium"|"low", "reasons": ["..."]}
Every metric needs a name and a measurable target.`)
	default:
		b.WriteString(`Respond with JSON:
{"mode": "...", "operations": [{"action": "...", "reference": "...", "value": "..."}], "proposed": ["..."], "confidence": "high"|"medium"|"low", "reasons": ["..."]}
Items are short, specific phrases. No duplicates.`)
	}

	return b.String()
}

func titlePrompt(rc *contracts.RunContext) string {
	return promptContext(rc, nil) + `
## Task
Produce a short document title (max 8 words) for the request above.
Respond with JSON: {"title": "..."}`
}
