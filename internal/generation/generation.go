// Package generation wraps the LLM backend behind a small structured-output
// interface. Skills describe the JSON they want in the prompt; this package
// handles transport, fenced-output cleanup, and repair retries so callers
// always see either parsed JSON or an error.
package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"prodagent/internal/contracts"
	"prodagent/internal/logging"
)

// Request is one structured-generation call.
type Request struct {
	// System primes the model's role for the call.
	System string
	// Prompt is the task itself, including the output schema description.
	Prompt string
	// Temperature overrides the client default when non-nil.
	Temperature *float64
	// MaxTokens overrides the client default when positive.
	MaxTokens int
}

// Response is the raw model output plus accounting.
type Response struct {
	Text  string
	Usage contracts.Usage
}

// Generator produces model output for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// GenerateJSON runs a request and unmarshals the model output into out,
// repairing common JSON defects first. On a parse failure it retries up to
// maxAttempts times with the parse error appended to the prompt, which is
// usually enough to get a model back on schema.
func GenerateJSON(ctx context.Context, g Generator, req Request, out any, maxAttempts int) (contracts.Usage, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var usage contracts.Usage
	prompt := req.Prompt

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptReq := req
		attemptReq.Prompt = prompt

		resp, err := g.Generate(ctx, attemptReq)
		if err != nil {
			return usage, err
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		raw, err := ExtractJSON(resp.Text)
		if err == nil {
			if err = json.Unmarshal([]byte(raw), out); err == nil {
				return usage, nil
			}
		}
		lastErr = err
		logging.GenerationDebug("attempt %d/%d produced unparseable JSON: %v", attempt, maxAttempts, err)

		prompt = fmt.Sprintf("%s\n\nYour previous response was not valid JSON (%v). Respond again with ONLY the corrected JSON object.", req.Prompt, err)
	}

	return usage, fmt.Errorf("model output was not valid JSON after %d attempts: %w", maxAttempts, lastErr)
}
