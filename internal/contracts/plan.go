package contracts

import (
	"fmt"
	"time"
)

// StepID identifies one node of a plan graph.
type StepID string

// NodeStatus is advisory bookkeeping maintained by the controller while it
// walks the graph. It has no bearing on plan validity.
type NodeStatus string

const (
	NodePending  NodeStatus = "pending"
	NodeReady    NodeStatus = "ready"
	NodeRunning  NodeStatus = "running"
	NodeComplete NodeStatus = "complete"
	NodeBlocked  NodeStatus = "blocked"
	NodeFailed   NodeStatus = "failed"
)

// TaskKind discriminates the task union carried by a plan node.
type TaskKind string

const (
	TaskClarificationCheck TaskKind = "clarification-check"
	TaskAnalyzeContext     TaskKind = "analyze-context"
	TaskWriteSection       TaskKind = "write-section"
	TaskAssembleArtifact   TaskKind = "assemble-artifact"
	TaskSubagent           TaskKind = "subagent"
)

// TaskSpec is the kind-tagged task payload of a plan node. Exactly the fields
// matching the Kind are meaningful; the rest stay zero.
type TaskSpec struct {
	Kind     TaskKind     `json:"kind"`
	Section  string       `json:"section,omitempty"`  // write-section
	Artifact ArtifactKind `json:"artifact,omitempty"` // assemble-artifact
	Subagent string       `json:"subagent,omitempty"` // subagent delegation
}

// PlanNode is one unit of work in a plan graph.
type PlanNode struct {
	ID        StepID         `json:"id"`
	Label     string         `json:"label"`
	Task      TaskSpec       `json:"task"`
	Status    NodeStatus     `json:"status"`
	DependsOn []StepID       `json:"depends_on,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PlanGraph is the DAG of tasks a controller executes for one run.
//
// Invariants: every DependsOn id resolves to a key in Nodes, the graph is
// acyclic, and EntryID names the single node with no dependencies.
type PlanGraph struct {
	ID           string              `json:"id"`
	ArtifactKind ArtifactKind        `json:"artifact_kind"`
	EntryID      StepID              `json:"entry_id"`
	Nodes        map[StepID]*PlanNode `json:"nodes"`
	CreatedAt    time.Time           `json:"created_at"`
	Version      int                 `json:"version"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// Validate checks the plan graph invariants: dependency resolution,
// acyclicity, and a single entry node matching EntryID.
func (g *PlanGraph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("plan %s has no nodes", g.ID)
	}

	entry, ok := g.Nodes[g.EntryID]
	if !ok {
		return fmt.Errorf("plan %s entry %q not found", g.ID, g.EntryID)
	}
	if len(entry.DependsOn) != 0 {
		return fmt.Errorf("plan %s entry %q has dependencies", g.ID, g.EntryID)
	}

	// Every dependency must resolve, and only the entry may be dependency-free.
	for id, node := range g.Nodes {
		if len(node.DependsOn) == 0 && id != g.EntryID {
			return fmt.Errorf("plan %s has second entry point %q", g.ID, id)
		}
		for _, dep := range node.DependsOn {
			if _, ok := g.Nodes[dep]; !ok {
				return fmt.Errorf("plan %s node %q depends on unknown node %q", g.ID, id, dep)
			}
		}
	}

	return g.checkAcyclic()
}

// checkAcyclic runs a three-color DFS over the dependency edges.
func (g *PlanGraph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[StepID]int, len(g.Nodes))

	var visit func(id StepID) error
	visit = func(id StepID) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("plan %s has a dependency cycle through %q", g.ID, id)
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range g.Nodes[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for id := range g.Nodes {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// TopoOrder returns node ids in a deterministic dependency order: a node
// appears only after everything it depends on. Ties break by id so plans
// execute reproducibly.
func (g *PlanGraph) TopoOrder() ([]StepID, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	indegree := make(map[StepID]int, len(g.Nodes))
	dependents := make(map[StepID][]StepID, len(g.Nodes))
	for id, node := range g.Nodes {
		indegree[id] = len(node.DependsOn)
		for _, dep := range node.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var frontier []StepID
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]StepID, 0, len(g.Nodes))
	for len(frontier) > 0 {
		sortSteps(frontier)
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				frontier = append(frontier, dep)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("plan %s topo sort left %d unreached nodes", g.ID, len(g.Nodes)-len(order))
	}
	return order, nil
}

func sortSteps(ids []StepID) {
	for i := 0; i < len(ids)-1; i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
}
