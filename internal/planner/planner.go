// Package planner builds the task DAG for a run: a clarification check
// feeding a context analysis, fanning out to one writer per target section,
// joined by an assembly node.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"prodagent/internal/contracts"
	"prodagent/internal/logging"
	"prodagent/internal/manifest"
)

// Canonical node ids. Writers are "write-<section>".
const (
	StepClarificationCheck contracts.StepID = "check-clarification"
	StepAnalyzeContext     contracts.StepID = "analyze-context"
	StepAssembleArtifact   contracts.StepID = "assemble-artifact"
)

// WriteStepID returns the node id of a section writer.
func WriteStepID(section string) contracts.StepID {
	return contracts.StepID("write-" + section)
}

// Planner turns run requests into plan graphs.
type Planner struct {
	registry *manifest.Registry
}

// New creates a planner over the artifact-kind registry.
func New(registry *manifest.Registry) *Planner {
	return &Planner{registry: registry}
}

// CreatePlan builds the plan graph for a request. Requested target sections
// narrow the writer fan-out; unknown section names drop silently, and a
// request whose targets all drop falls back to the full section set.
func (p *Planner) CreatePlan(request *contracts.RunRequest) (*contracts.PlanGraph, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	kind, ok := p.registry.Kind(request.ArtifactKind)
	if !ok {
		return nil, fmt.Errorf("unknown artifact kind %q", request.ArtifactKind)
	}
	if len(kind.Sections) == 0 {
		return nil, fmt.Errorf("artifact kind %q has no plannable sections", request.ArtifactKind)
	}

	sections := p.registry.FilterSections(request.ArtifactKind, request.Input.TargetSections)
	if len(sections) == 0 {
		logging.Planner("no requested section survived filtering, planning the full document")
		sections = kind.SectionNames()
	}

	graph := &contracts.PlanGraph{
		ID:           "plan-" + uuid.New().String()[:8],
		ArtifactKind: request.ArtifactKind,
		EntryID:      StepClarificationCheck,
		Nodes:        make(map[contracts.StepID]*contracts.PlanNode),
		CreatedAt:    time.Now().UTC(),
		Version:      1,
	}

	graph.Nodes[StepClarificationCheck] = &contracts.PlanNode{
		ID:     StepClarificationCheck,
		Label:  "Check whether the request needs clarification",
		Task:   contracts.TaskSpec{Kind: contracts.TaskClarificationCheck},
		Status: contracts.NodePending,
	}
	graph.Nodes[StepAnalyzeContext] = &contracts.PlanNode{
		ID:        StepAnalyzeContext,
		Label:     "Analyze the request and supplied context",
		Task:      contracts.TaskSpec{Kind: contracts.TaskAnalyzeContext},
		Status:    contracts.NodePending,
		DependsOn: []contracts.StepID{StepClarificationCheck},
	}

	writerIDs := make([]contracts.StepID, 0, len(sections))
	for _, section := range sections {
		spec, _ := kind.Section(section)
		id := WriteStepID(section)
		writerIDs = append(writerIDs, id)
		graph.Nodes[id] = &contracts.PlanNode{
			ID:        id,
			Label:     "Write the " + spec.Label + " section",
			Task:      contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: section},
			Status:    contracts.NodePending,
			DependsOn: []contracts.StepID{StepAnalyzeContext},
		}
	}

	graph.Nodes[StepAssembleArtifact] = &contracts.PlanNode{
		ID:        StepAssembleArtifact,
		Label:     "Assemble and validate the artifact",
		Task:      contracts.TaskSpec{Kind: contracts.TaskAssembleArtifact, Artifact: request.ArtifactKind},
		Status:    contracts.NodePending,
		DependsOn: writerIDs,
	}

	// Requested companion artifacts hang off the assembled document as
	// delegated subagent nodes.
	for _, name := range requestedSubagents(request) {
		id := contracts.StepID("subagent-" + name)
		graph.Nodes[id] = &contracts.PlanNode{
			ID:        id,
			Label:     "Delegate to the " + name + " subagent",
			Task:      contracts.TaskSpec{Kind: contracts.TaskSubagent, Subagent: name},
			Status:    contracts.NodePending,
			DependsOn: []contracts.StepID{StepAssembleArtifact},
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("planner produced an invalid graph: %w", err)
	}

	logging.Planner("plan %s: %d nodes, %d writers for %s", graph.ID, len(graph.Nodes), len(writerIDs), request.ArtifactKind)
	return graph, nil
}

// requestedSubagents parses the comma-separated subagent list from the
// request attributes, deduplicated in request order.
func requestedSubagents(request *contracts.RunRequest) []string {
	raw, ok := request.Attributes["subagents"]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// RefinePlan re-validates a graph mid-run. Earlier revisions rewrote plans
// from intermediate results; refinement is now a validation pass that bumps
// the version, and replanning happens only through a fresh CreatePlan.
func (p *Planner) RefinePlan(graph *contracts.PlanGraph) (*contracts.PlanGraph, error) {
	if graph == nil {
		return nil, fmt.Errorf("no plan to refine")
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	graph.Version++
	return graph, nil
}
