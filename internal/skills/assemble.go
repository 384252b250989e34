package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"prodagent/internal/confidence"
	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
)

// Artifact versions: runs that produced per-section confidence grades emit
// version 2.0 documents, legacy-shaped runs emit 1.0.
const (
	artifactVersionGraded = "2.0"
	artifactVersionPlain  = "1.0"
)

type titlePayload struct {
	Title string `json:"title"`
}

func (r *Runner) runAssembleArtifact(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode) (*contracts.SkillResult, error) {
	if node.Task.Artifact != contracts.KindPRD {
		return nil, fmt.Errorf("node %s assembles unsupported kind %q", node.ID, node.Task.Artifact)
	}
	kind, ok := r.registry.Kind(contracts.KindPRD)
	if !ok {
		return nil, fmt.Errorf("prd kind missing from registry")
	}

	state := r.states.Get(rc.RunID)
	r.seedState(rc, state)

	sections := state.Sections()
	confidences := state.Confidences()
	validation := buildValidationBlock(kind, sections, state.Issues())

	title := state.Title()
	if title == "" {
		title = r.resolveTitle(ctx, rc)
	}

	doc := &contracts.PRDocument{
		Title:      title,
		Sections:   sections,
		Validation: validation,
	}

	version := artifactVersionPlain
	// Sections the writers produced this run, in canonical order; seeded
	// sections inherited from an existing document are not "generated".
	generated := make([]string, 0, len(confidences))
	for _, spec := range kind.Sections {
		if _, ok := confidences[spec.Name]; ok {
			generated = append(generated, spec.Name)
		}
	}
	meta := contracts.ArtifactMetadata{
		CreatedAt: time.Now().UTC(),
		CreatedBy: rc.Request.CreatedBy,
		Extras:    map[string]any{"sections_generated": generated},
	}
	var overall confidence.Assessment
	if len(confidences) > 0 {
		overall = confidence.Combine(confidences)
		version = artifactVersionGraded
		meta.Confidence = string(overall.Level)
		perSection := make(map[string]any, len(confidences))
		for name, a := range confidences {
			perSection[name] = a
		}
		meta.Extras["section_confidence"] = perSection
	}

	artifact := &contracts.Artifact{
		ID:       "prd-" + uuid.New().String()[:8],
		Kind:     contracts.KindPRD,
		Version:  version,
		Label:    kind.Label,
		Data:     doc,
		Metadata: meta,
	}

	if rc.Workspace != nil {
		if err := rc.Workspace.WriteArtifact(ctx, rc.RunID, artifact); err != nil {
			return nil, fmt.Errorf("failed to persist artifact: %w", err)
		}
	}

	// The run is over; the working document must not outlive it.
	r.states.Clear(rc.RunID)

	logging.Skills("run %s: assembled artifact %s (version %s, confidence %s)",
		rc.RunID, artifact.ID, version, meta.Confidence)

	return &contracts.SkillResult{
		StepID:     node.ID,
		SkillID:    string(contracts.TaskAssembleArtifact),
		Output:     artifact,
		Confidence: meta.Confidence,
	}, nil
}

// resolveTitle asks the model for a short title, falling back to the leading
// words of the request when generation is unavailable.
func (r *Runner) resolveTitle(ctx context.Context, rc *contracts.RunContext) string {
	var payload titlePayload
	if _, err := generation.GenerateJSON(ctx, r.gen, generation.Request{
		System: systemPrompt,
		Prompt: titlePrompt(rc),
	}, &payload, 1); err == nil {
		if title := strings.TrimSpace(payload.Title); title != "" {
			return title
		}
	} else {
		logging.SkillsWarn("run %s: title generation failed, deriving from request: %v", rc.RunID, err)
	}

	words := strings.Fields(rc.Request.Input.Message)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
