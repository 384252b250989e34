package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"prodagent/internal/contracts"
	"prodagent/internal/logging"
	"prodagent/internal/skills"
)

// execState is the mutable bookkeeping for one graph walk. Guarded by its
// mutex because ready siblings complete concurrently.
type execState struct {
	mu        sync.Mutex
	completed map[contracts.StepID]bool
	results   map[contracts.StepID]*contracts.SkillResult
	subagents []contracts.SubagentRunSummary
	interrupt *contracts.Clarification
	intStep   contracts.StepID
}

func (c *Controller) execute(ctx context.Context, rc *contracts.RunContext, plan *contracts.PlanGraph, record *contracts.RunRecord) (*contracts.RunSummary, error) {
	maxParallel, stepTimeout, runTimeout := c.limits()

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	order, err := plan.TopoOrder()
	if err != nil {
		return c.failRun(rc, record, nil, err)
	}

	st := &execState{
		completed: make(map[contracts.StepID]bool, len(order)),
		results:   make(map[contracts.StepID]*contracts.SkillResult, len(order)),
	}

	for len(st.completed) < len(order) {
		ready := readyNodes(plan, st)
		if len(ready) == 0 {
			err := fmt.Errorf("run %s stalled with %d/%d nodes complete", rc.RunID, len(st.completed), len(order))
			return c.failRun(rc, record, orderedResults(order, st), err)
		}

		g, gctx := errgroup.WithContext(runCtx)
		g.SetLimit(maxParallel)
		for _, id := range ready {
			id := id
			g.Go(func() error {
				return c.runNode(gctx, rc, plan.Nodes[id], record, st, stepTimeout)
			})
		}
		if err := g.Wait(); err != nil {
			return c.failRun(rc, record, orderedResults(order, st), err)
		}

		// A clarification finding stops scheduling: nothing queued after this
		// batch runs, and the run parks until Resume.
		st.mu.Lock()
		interrupt := st.interrupt
		st.mu.Unlock()
		if interrupt != nil {
			return c.pauseRun(rc, record, st, interrupt)
		}
	}

	return c.completeRun(runCtx, rc, record, plan, order, st)
}

// readyNodes returns not-yet-run nodes whose dependencies all completed,
// sorted for deterministic scheduling.
func readyNodes(plan *contracts.PlanGraph, st *execState) []contracts.StepID {
	st.mu.Lock()
	defer st.mu.Unlock()

	var ready []contracts.StepID
	for id, node := range plan.Nodes {
		if st.completed[id] {
			continue
		}
		ok := true
		for _, dep := range node.DependsOn {
			if !st.completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	sortStepIDs(ready)
	return ready
}

func (c *Controller) runNode(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode, record *contracts.RunRecord, st *execState, stepTimeout time.Duration) error {
	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventStepStarted,
		RunID:     rc.RunID,
		StepID:    node.ID,
		Timestamp: time.Now().UTC(),
		Message:   node.Label,
	})

	nodeCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	var (
		result *contracts.SkillResult
		subSum *contracts.SubagentRunSummary
		err    error
	)
	if node.Task.Kind == contracts.TaskSubagent {
		subSum, err = c.runSubagentNode(nodeCtx, rc, node)
		if subSum != nil {
			result = &contracts.SkillResult{
				StepID:  node.ID,
				SkillID: "subagent-" + node.Task.Subagent,
				Output:  subSum,
			}
		}
	} else {
		result, err = c.runner.Invoke(nodeCtx, rc, node)
	}
	if err != nil {
		c.emit(contracts.ProgressEvent{
			Type:      contracts.EventStepFailed,
			RunID:     rc.RunID,
			StepID:    node.ID,
			Timestamp: time.Now().UTC(),
			Message:   err.Error(),
		})
		return fmt.Errorf("node %s: %w", node.ID, err)
	}

	st.mu.Lock()
	st.completed[node.ID] = true
	st.results[node.ID] = result
	if subSum != nil {
		st.subagents = append(st.subagents, *subSum)
	}
	if needs, ok := result.Metadata[skills.MetaNeedsClarification].(bool); ok && needs {
		if clarification, ok := result.Output.(*contracts.Clarification); ok {
			st.interrupt = clarification
			st.intStep = node.ID
		}
	}
	record.CompletedSteps = append(record.CompletedSteps, node.ID)
	record.UpdatedAt = time.Now().UTC()
	// Snapshot under the lock: sibling nodes append concurrently.
	snapshot := *record
	snapshot.CompletedSteps = append([]contracts.StepID(nil), record.CompletedSteps...)
	st.mu.Unlock()

	if err := c.ws.SaveRunRecord(ctx, &snapshot); err != nil {
		logging.ControllerWarn("run %s: run record save failed after %s: %v", rc.RunID, node.ID, err)
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventStepCompleted,
		RunID:     rc.RunID,
		StepID:    node.ID,
		Timestamp: time.Now().UTC(),
		Status:    result.Confidence,
	})
	return nil
}

func (c *Controller) runSubagentNode(ctx context.Context, rc *contracts.RunContext, node *contracts.PlanNode) (*contracts.SubagentRunSummary, error) {
	c.mu.RLock()
	exec := c.subagents
	c.mu.RUnlock()
	if exec == nil {
		return nil, fmt.Errorf("no subagent executor attached for %q", node.Task.Subagent)
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventSubagentStarted,
		RunID:     rc.RunID,
		StepID:    node.ID,
		Timestamp: time.Now().UTC(),
		Message:   node.Task.Subagent,
	})

	summary, err := exec.Execute(ctx, rc, node.Task.Subagent)
	if err == nil && summary == nil {
		err = fmt.Errorf("subagent executor returned no summary for %q", node.Task.Subagent)
	}
	if err != nil {
		c.emit(contracts.ProgressEvent{
			Type:      contracts.EventSubagentFailed,
			RunID:     rc.RunID,
			StepID:    node.ID,
			Timestamp: time.Now().UTC(),
			Message:   err.Error(),
		})
		return nil, err
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventSubagentCompleted,
		RunID:     rc.RunID,
		StepID:    node.ID,
		Timestamp: time.Now().UTC(),
		Message:   summary.Subagent,
		Status:    string(summary.Status),
	})
	return summary, nil
}

func (c *Controller) pauseRun(rc *contracts.RunContext, record *contracts.RunRecord, st *execState, clarification *contracts.Clarification) (*contracts.RunSummary, error) {
	record.Status = contracts.RunAwaitingInput
	record.Clarification = clarification
	record.UpdatedAt = time.Now().UTC()
	if err := c.ws.SaveRunRecord(context.Background(), record); err != nil {
		logging.ControllerWarn("run %s: pause record save failed: %v", rc.RunID, err)
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventRunAwaitingInput,
		RunID:     rc.RunID,
		StepID:    st.intStep,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"questions": clarification.Questions},
	})

	logging.Controller("run %s awaiting input: %d questions", rc.RunID, len(clarification.Questions))

	// Exactly the clarification result; nothing else ran.
	st.mu.Lock()
	result := st.results[st.intStep]
	st.mu.Unlock()

	return &contracts.RunSummary{
		RunID:        rc.RunID,
		Status:       contracts.RunAwaitingInput,
		SkillResults: []contracts.SkillResult{*result},
		Metadata:     map[string]any{"questions": clarification.Questions},
	}, nil
}

func (c *Controller) failRun(rc *contracts.RunContext, record *contracts.RunRecord, results []contracts.SkillResult, err error) (*contracts.RunSummary, error) {
	record.Status = contracts.RunFailed
	record.Error = err.Error()
	record.UpdatedAt = time.Now().UTC()
	if saveErr := c.ws.SaveRunRecord(context.Background(), record); saveErr != nil {
		logging.ControllerWarn("run %s: failure record save failed: %v", rc.RunID, saveErr)
	}

	// Failed runs must not leak working state.
	c.runner.States().Clear(rc.RunID)

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventRunFailed,
		RunID:     rc.RunID,
		Timestamp: time.Now().UTC(),
		Message:   err.Error(),
	})
	logging.ControllerError("run %s failed: %v", rc.RunID, err)

	return &contracts.RunSummary{
		RunID:        rc.RunID,
		Status:       contracts.RunFailed,
		SkillResults: results,
		Metadata:     map[string]any{"error": err.Error()},
	}, err
}

func (c *Controller) completeRun(ctx context.Context, rc *contracts.RunContext, record *contracts.RunRecord, plan *contracts.PlanGraph, order []contracts.StepID, st *execState) (*contracts.RunSummary, error) {
	artifact := deliveredArtifact(plan, st)
	if artifact == nil {
		return c.failRun(rc, record, orderedResults(order, st), fmt.Errorf("run %s completed without an artifact", rc.RunID))
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventVerificationBegan,
		RunID:     rc.RunID,
		Timestamp: time.Now().UTC(),
	})
	verification := c.verifier.Verify(ctx, artifact)
	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventVerificationEnded,
		RunID:     rc.RunID,
		Timestamp: time.Now().UTC(),
		Status:    string(verification.Status),
		Payload:   map[string]any{"issues": len(verification.Issues)},
	})

	if verification.Status == contracts.VerificationFail {
		summary, err := c.failRun(rc, record, orderedResults(order, st),
			fmt.Errorf("verification failed with %d findings", len(verification.Issues)))
		summary.Artifact = artifact
		summary.Verification = verification
		return summary, err
	}

	record.Status = contracts.RunCompleted
	record.UpdatedAt = time.Now().UTC()
	if err := c.ws.SaveRunRecord(context.Background(), record); err != nil {
		logging.ControllerWarn("run %s: completion record save failed: %v", rc.RunID, err)
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventArtifactDelivered,
		RunID:     rc.RunID,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"artifact_id": artifact.ID, "version": artifact.Version},
	})
	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventRunCompleted,
		RunID:     rc.RunID,
		Timestamp: time.Now().UTC(),
	})

	logging.Controller("run %s completed: artifact %s, verification %s", rc.RunID, artifact.ID, verification.Status)

	st.mu.Lock()
	subagents := append([]contracts.SubagentRunSummary(nil), st.subagents...)
	st.mu.Unlock()

	return &contracts.RunSummary{
		RunID:        rc.RunID,
		Status:       contracts.RunCompleted,
		Artifact:     artifact,
		SkillResults: orderedResults(order, st),
		Verification: verification,
		Subagents:    subagents,
	}, nil
}

// deliveredArtifact finds the assemble node's output.
func deliveredArtifact(plan *contracts.PlanGraph, st *execState) *contracts.Artifact {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, node := range plan.Nodes {
		if node.Task.Kind != contracts.TaskAssembleArtifact {
			continue
		}
		if result, ok := st.results[id]; ok {
			if artifact, ok := result.Output.(*contracts.Artifact); ok {
				return artifact
			}
		}
	}
	return nil
}

// orderedResults flattens results into topo order for deterministic output.
func orderedResults(order []contracts.StepID, st *execState) []contracts.SkillResult {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]contracts.SkillResult, 0, len(st.results))
	for _, id := range order {
		if result, ok := st.results[id]; ok {
			out = append(out, *result)
		}
	}
	return out
}

func sortStepIDs(ids []contracts.StepID) {
	for i := 0; i < len(ids)-1; i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
}
