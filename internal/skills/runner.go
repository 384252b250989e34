// Package skills implements the execution of individual plan nodes: the
// clarification check, context analysis, section writers, and artifact
// assembly. Each skill takes the shared run context plus its node and returns
// a SkillResult; section writers additionally merge into the run's state.
package skills

import (
	"context"
	"fmt"

	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/logging"
	"prodagent/internal/manifest"
)

// Runner dispatches plan nodes to their skill implementations.
type Runner struct {
	gen        generation.Generator
	states     *StateStore
	registry   *manifest.Registry
	maxRepairs int
}

// NewRunner creates a skill runner.
func NewRunner(gen generation.Generator, registry *manifest.Registry, maxRepairs int) *Runner {
	if maxRepairs < 1 {
		maxRepairs = 2
	}
	return &Runner{
		gen:        gen,
		states:     NewStateStore(),
		registry:   registry,
		maxRepairs: maxRepairs,
	}
}

// States exposes the run-state store. The controller uses it to seed state
// from an existing PRD and to clear state on failure paths.
func (r *Runner) States() *StateStore {
	return r.states
}

// Invoke executes the node's task and returns its result. Subagent nodes are
// delegated above this layer; seeing one here is a controller bug.
func (r *Runner) Invoke(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode) (*contracts.SkillResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logging.WithRunID(logging.CategorySkills, rc.RunID)
	log.Info("invoking %s (%s)", node.ID, node.Task.Kind)

	switch node.Task.Kind {
	case contracts.TaskClarificationCheck:
		return r.runClarificationCheck(ctx, rc, node)
	case contracts.TaskAnalyzeContext:
		return r.runAnalyzeContext(ctx, rc, node)
	case contracts.TaskWriteSection:
		return r.runWriteSection(ctx, rc, node)
	case contracts.TaskAssembleArtifact:
		return r.runAssembleArtifact(ctx, rc, node)
	case contracts.TaskSubagent:
		return nil, fmt.Errorf("subagent node %s reached the skill runner", node.ID)
	}
	return nil, fmt.Errorf("node %s has unknown task kind %q", node.ID, node.Task.Kind)
}
