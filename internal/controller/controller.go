// Package controller executes plan graphs: it walks the DAG in dependency
// order, runs ready siblings concurrently, persists resumable state after
// every node, and turns a clarification finding into a paused run instead of
// a failure.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prodagent/internal/contracts"
	"prodagent/internal/logging"
	"prodagent/internal/planner"
	"prodagent/internal/skills"
	"prodagent/internal/verify"
)

// SubagentExecutor runs a delegated subagent node and reports its outcome.
type SubagentExecutor interface {
	Execute(ctx context.Context, rc *contracts.RunContext, name string) (*contracts.SubagentRunSummary, error)
}

// Controller coordinates one engine instance. Safe for concurrent runs; all
// per-run state lives in the run context and the workspace.
type Controller struct {
	planner  *planner.Planner
	runner   *skills.Runner
	verifier *verify.Verifier
	ws       contracts.Workspace

	mu          sync.RWMutex
	sink        contracts.EventSink
	subagents   SubagentExecutor
	settings    contracts.RunSettings
	maxParallel int
	stepTimeout time.Duration
	runTimeout  time.Duration
}

// New creates a controller. Event sink and subagent executor attach via the
// setters; without them events drop and subagent nodes fail.
func New(p *planner.Planner, r *skills.Runner, v *verify.Verifier, ws contracts.Workspace) *Controller {
	return &Controller{
		planner:     p,
		runner:      r,
		verifier:    v,
		ws:          ws,
		sink:        contracts.NoopSink{},
		maxParallel: 4,
		stepTimeout: 3 * time.Minute,
		runTimeout:  15 * time.Minute,
	}
}

// SetEventSink attaches a progress event sink.
func (c *Controller) SetEventSink(sink contracts.EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sink != nil {
		c.sink = sink
	}
}

// SetSubagents attaches the executor for delegated subagent nodes.
func (c *Controller) SetSubagents(exec SubagentExecutor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subagents = exec
}

// SetSettings records the generation settings stamped onto each run.
func (c *Controller) SetSettings(settings contracts.RunSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
}

// SetLimits tunes concurrency and timeouts.
func (c *Controller) SetLimits(maxParallel int, stepTimeout, runTimeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxParallel > 0 {
		c.maxParallel = maxParallel
	}
	if stepTimeout > 0 {
		c.stepTimeout = stepTimeout
	}
	if runTimeout > 0 {
		c.runTimeout = runTimeout
	}
}

// Start validates the request, plans it, and executes the plan to completion,
// interruption, or failure.
func (c *Controller) Start(ctx context.Context, request *contracts.RunRequest) (*contracts.RunSummary, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	runID := "run-" + uuid.New().String()[:8]
	log := logging.WithRunID(logging.CategoryController, runID)
	log.Info("starting run for %s", request.ArtifactKind)

	if err := c.ws.EnsureWorkspace(ctx, runID); err != nil {
		return nil, err
	}

	plan, err := c.planner.CreatePlan(request)
	if err != nil {
		return nil, err
	}

	rc := &contracts.RunContext{
		RunID:     runID,
		Request:   *request,
		Settings:  c.currentSettings(),
		Workspace: c.ws,
		StartedAt: time.Now().UTC(),
		Metadata:  map[string]any{},
	}

	record := &contracts.RunRecord{
		RunID:     runID,
		Request:   *request,
		Status:    contracts.RunRunning,
		StartedAt: rc.StartedAt,
		UpdatedAt: rc.StartedAt,
	}
	if err := c.ws.SaveRunRecord(ctx, record); err != nil {
		return nil, err
	}

	c.emit(contracts.ProgressEvent{
		Type:      contracts.EventPlanCreated,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"plan_id": plan.ID, "nodes": len(plan.Nodes)},
	})

	return c.execute(ctx, rc, plan, record)
}

// Resume continues a run that paused for clarification. The answers merge
// into the original request message and the clarification check passes
// through on the re-run.
func (c *Controller) Resume(ctx context.Context, runID string, answers []string) (*contracts.RunSummary, error) {
	record, err := c.ws.LoadRunRecord(ctx, runID)
	if err != nil {
		return nil, err
	}
	if record.Status != contracts.RunAwaitingInput {
		return nil, fmt.Errorf("run %s is %s, only awaiting-input runs resume", runID, record.Status)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("run %s cannot resume without answers", runID)
	}

	log := logging.WithRunID(logging.CategoryController, runID)
	log.Info("resuming with %d answers", len(answers))

	request := record.Request
	request.Input.Message = mergeAnswers(request.Input.Message, record.Clarification, answers)

	plan, err := c.planner.CreatePlan(&request)
	if err != nil {
		return nil, err
	}

	rc := &contracts.RunContext{
		RunID:     runID,
		Request:   request,
		Settings:  c.currentSettings(),
		Workspace: c.ws,
		StartedAt: time.Now().UTC(),
		Metadata:  map[string]any{"clarification_answered": true},
	}

	record.Request = request
	record.Status = contracts.RunRunning
	record.Clarification = nil
	record.CompletedSteps = nil
	record.UpdatedAt = time.Now().UTC()
	if err := c.ws.SaveRunRecord(ctx, record); err != nil {
		return nil, err
	}

	return c.execute(ctx, rc, plan, record)
}

func (c *Controller) currentSettings() contracts.RunSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func (c *Controller) limits() (int, time.Duration, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxParallel, c.stepTimeout, c.runTimeout
}

func (c *Controller) emit(event contracts.ProgressEvent) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	sink.Emit(event)

	if c.ws != nil {
		if err := c.ws.AppendEvent(context.Background(), event); err != nil {
			logging.ControllerWarn("run %s: event log append failed: %v", event.RunID, err)
		}
	}
}

// mergeAnswers folds clarification answers back into the request message so
// downstream skills see one coherent brief.
func mergeAnswers(message string, clarification *contracts.Clarification, answers []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(message))
	b.WriteString("\n\nClarification answers:\n")
	for i, answer := range answers {
		if clarification != nil && i < len(clarification.Questions) {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", clarification.Questions[i], strings.TrimSpace(answer))
		} else {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(answer))
		}
	}
	return b.String()
}
