// Package subagent implements the companion-artifact generators: single-call
// agents that take a delivered PRD and produce personas, a story map, or a
// research brief alongside it.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
	"prodagent/internal/manifest"
)

// Generator produces one companion artifact's payload from the parent run.
type Generator interface {
	Kind() contracts.ArtifactKind
	Generate(ctx context.Context, rc *contracts.RunContext, doc *contracts.PRDocument) (any, error)
}

// Facade routes subagent delegations by name and wraps payloads into
// persisted artifacts. It satisfies the controller's SubagentExecutor.
type Facade struct {
	mu         sync.RWMutex
	generators map[string]Generator
	registry   *manifest.Registry
}

// New creates a façade with the built-in persona, story-map, and research
// generators registered.
func New(gen generation.Generator, registry *manifest.Registry, maxRepairs int) *Facade {
	if maxRepairs < 1 {
		maxRepairs = 2
	}
	f := &Facade{
		generators: make(map[string]Generator),
		registry:   registry,
	}
	f.Register("persona", &personaGenerator{gen: gen, maxRepairs: maxRepairs})
	f.Register("story-map", &storyMapGenerator{gen: gen, maxRepairs: maxRepairs})
	f.Register("research", &researchGenerator{gen: gen, maxRepairs: maxRepairs})
	return f
}

// Register adds or replaces a named generator.
func (f *Facade) Register(name string, g Generator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generators[name] = g
}

// Names returns the registered subagent names.
func (f *Facade) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.generators))
	for name := range f.generators {
		out = append(out, name)
	}
	return out
}

// Execute runs the named subagent for the parent run and persists its
// artifact into the run's workspace.
func (f *Facade) Execute(ctx context.Context, rc *contracts.RunContext, name string) (*contracts.SubagentRunSummary, error) {
	f.mu.RLock()
	gen, ok := f.generators[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown subagent %q", name)
	}

	subRunID := rc.RunID + "-" + name
	summary := &contracts.SubagentRunSummary{
		Subagent: name,
		RunID:    subRunID,
		Kind:     gen.Kind(),
	}

	logging.Subagent("run %s: delegating to %s", rc.RunID, name)

	doc, err := f.parentDocument(ctx, rc)
	if err != nil {
		logging.SubagentDebug("run %s: no parent PRD for %s, generating from the request alone: %v", rc.RunID, name, err)
	}

	payload, err := gen.Generate(ctx, rc, doc)
	if err != nil {
		summary.Status = contracts.RunFailed
		summary.Error = err.Error()
		return summary, fmt.Errorf("subagent %s: %w", name, err)
	}

	label := ""
	if spec, ok := f.registry.Kind(gen.Kind()); ok {
		label = spec.Label
	}
	artifact := &contracts.Artifact{
		ID:      string(gen.Kind()) + "-" + uuid.New().String()[:8],
		Kind:    gen.Kind(),
		Version: "1.0",
		Label:   label,
		Data:    payload,
		Metadata: contracts.ArtifactMetadata{
			CreatedAt: time.Now().UTC(),
			CreatedBy: rc.Request.CreatedBy,
			Extras:    map[string]any{"parent_run": rc.RunID, "subagent": name},
		},
	}

	if rc.Workspace != nil {
		if err := rc.Workspace.WriteArtifact(ctx, rc.RunID, artifact); err != nil {
			summary.Status = contracts.RunFailed
			summary.Error = err.Error()
			return summary, fmt.Errorf("subagent %s: persisting artifact: %w", name, err)
		}
	}

	summary.Status = contracts.RunCompleted
	summary.ArtifactID = artifact.ID
	logging.Subagent("run %s: subagent %s delivered %s", rc.RunID, name, artifact.ID)
	return summary, nil
}

// parentDocument loads the parent run's delivered PRD, preferring the most
// recently created one.
func (f *Facade) parentDocument(ctx context.Context, rc *contracts.RunContext) (*contracts.PRDocument, error) {
	if rc.Workspace == nil {
		return nil, fmt.Errorf("run has no workspace")
	}
	artifacts, err := rc.Workspace.ListArtifacts(ctx, rc.RunID)
	if err != nil {
		return nil, err
	}
	var latest *contracts.Artifact
	for _, a := range artifacts {
		if a.Kind != contracts.KindPRD {
			continue
		}
		if latest == nil || a.Metadata.CreatedAt.After(latest.Metadata.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("run %s has no PRD artifact", rc.RunID)
	}
	return contracts.DecodePRDocument(latest)
}

// documentBrief renders the parent PRD (or, failing that, the raw request)
// as prompt material.
func documentBrief(rc *contracts.RunContext, doc *contracts.PRDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Original request\n%s\n", strings.TrimSpace(rc.Request.Input.Message))
	if doc != nil {
		if raw, err := json.MarshalIndent(doc, "", "  "); err == nil {
			fmt.Fprintf(&b, "\n## Product requirements document\n%s\n", raw)
		}
	}
	return b.String()
}
