package generation

import (
	"context"

	"prodagent/internal/logging"
)

// Traced decorates a Generator with API-category logging and latency timing.
type Traced struct {
	inner Generator
	label string
}

// NewTraced wraps a generator. The label appears in every log line so
// concurrent runs can be told apart.
func NewTraced(inner Generator, label string) *Traced {
	return &Traced{inner: inner, label: label}
}

func (t *Traced) Generate(ctx context.Context, req Request) (*Response, error) {
	logging.API("[%s] generate: %d prompt bytes", t.label, len(req.Prompt))
	timer := logging.StartTimer(logging.CategoryAPI, "generate")

	resp, err := t.inner.Generate(ctx, req)
	elapsed := timer.Stop()

	if err != nil {
		logging.APIError("[%s] generate failed after %s: %v", t.label, elapsed, err)
		return nil, err
	}

	logging.API("[%s] generate ok in %s: %d output bytes, %d+%d tokens",
		t.label, elapsed, len(resp.Text), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}
