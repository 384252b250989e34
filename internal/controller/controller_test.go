package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/manifest"
	"prodagent/internal/planner"
	"prodagent/internal/skills"
	"prodagent/internal/verify"
	"prodagent/internal/workspace"
)

func TestMain(m *testing.M) {
	// The genai dependency links opencensus, whose init starts a permanent
	// stats worker goroutine.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// routingGen answers by prompt content so concurrent section writers each
// get the right payload regardless of scheduling order.
type routingGen struct {
	mu     sync.Mutex
	routes map[string]string
	calls  []string
}

func (g *routingGen) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.calls = append(g.calls, req.Prompt)
	g.mu.Unlock()
	for key, resp := range g.routes {
		if strings.Contains(req.Prompt, key) {
			return &generation.Response{Text: resp, Usage: contracts.Usage{InputTokens: 5, OutputTokens: 5}}, nil
		}
	}
	return &generation.Response{Text: `{}`}, nil
}

func defaultRoutes() map[string]string {
	return map[string]string{
		"enough signal":        `{"needs_clarification": false, "questions": [], "reason": ""}`,
		"Distill the material": `{"summary": "Expense tracker for freelancers", "key_points": ["offline"], "assumptions": [], "richness": 0.8}`,
		"(target_users)":       `{"mode": "smart_merge", "proposed": ["Freelance consultants", "Small agency owners"], "confidence": "high", "reasons": []}`,
		"(solution)":           `{"mode": "replace", "proposed": {"summary": "A mobile-first expense tracker with offline capture and automated tax exports.", "approach": "PWA", "differentiators": ["Offline-first"]}, "confidence": "high", "reasons": []}`,
		"(key_features)":       `{"mode": "smart_merge", "proposed": ["Offline receipt capture", "Automated tax exports"], "confidence": "high", "reasons": []}`,
		"(success_metrics)":    `{"mode": "smart_merge", "proposed": [{"name": "Weekly active users", "target": "5k", "timeframe": "6 months"}], "confidence": "high", "reasons": []}`,
		"(constraints)":        `{"mode": "smart_merge", "proposed": ["Must work fully offline"], "confidence": "high", "reasons": []}`,
		"short document title": `{"title": "Freelancer Expense Tracker"}`,
	}
}

// recordingSink captures events thread-safely.
type recordingSink struct {
	mu     sync.Mutex
	events []contracts.ProgressEvent
}

func (s *recordingSink) Emit(ev contracts.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func newTestController(routes map[string]string) (*Controller, *recordingSink, contracts.Workspace) {
	reg := manifest.Default()
	runner := skills.NewRunner(&routingGen{routes: routes}, reg, 2)
	ws := workspace.NewMemory()
	c := New(planner.New(reg), runner, verify.NewDefault(reg), ws)
	sink := &recordingSink{}
	c.SetEventSink(sink)
	c.SetSettings(contracts.RunSettings{Model: "gemini-2.5-flash", Temperature: 0.4})
	return c, sink, ws
}

func fullRequest() *contracts.RunRequest {
	return &contracts.RunRequest{
		ArtifactKind: contracts.KindPRD,
		Input: contracts.RunInput{
			Message: "Build an expense tracker for freelance consultants with offline receipts and tax exports",
		},
		CreatedBy: "tester",
	}
}

func TestStartCompletesFullRun(t *testing.T) {
	c, sink, ws := newTestController(defaultRoutes())

	summary, err := c.Start(context.Background(), fullRequest())
	require.NoError(t, err)

	assert.Equal(t, contracts.RunCompleted, summary.Status)
	require.NotNil(t, summary.Artifact)
	assert.Equal(t, "2.0", summary.Artifact.Version)
	assert.Len(t, summary.SkillResults, 8)

	require.NotNil(t, summary.Verification)
	assert.Equal(t, contracts.VerificationPass, summary.Verification.Status)

	// Results come back in dependency order.
	assert.Equal(t, contracts.StepID("check-clarification"), summary.SkillResults[0].StepID)
	assert.Equal(t, contracts.StepID("assemble-artifact"), summary.SkillResults[len(summary.SkillResults)-1].StepID)

	record, err := ws.LoadRunRecord(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunCompleted, record.Status)
	assert.Len(t, record.CompletedSteps, 8)

	types := sink.types()
	assert.Contains(t, types, contracts.EventPlanCreated)
	assert.Contains(t, types, contracts.EventVerificationEnded)
	assert.Contains(t, types, contracts.EventArtifactDelivered)
	assert.Equal(t, contracts.EventRunCompleted, types[len(types)-1])

	// The event log in the workspace mirrors the sink.
	events, err := ws.GetEvents(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Len(t, events, len(types))
}

func TestStartRejectsEmptyInputSynchronously(t *testing.T) {
	c, sink, _ := newTestController(defaultRoutes())

	_, err := c.Start(context.Background(), &contracts.RunRequest{
		ArtifactKind: contracts.KindPRD,
		Input:        contracts.RunInput{Message: "  "},
	})
	require.ErrorIs(t, err, contracts.ErrMissingInput)
	assert.Empty(t, sink.types(), "rejected requests emit no events")
}

func TestClarificationInterrupt(t *testing.T) {
	routes := defaultRoutes()
	routes["enough signal"] = `{"needs_clarification": true, "questions": ["Who is the target user?", "Which platforms?"], "reason": "too vague"}`
	c, sink, ws := newTestController(routes)

	summary, err := c.Start(context.Background(), fullRequest())
	require.NoError(t, err)

	assert.Equal(t, contracts.RunAwaitingInput, summary.Status)
	require.Len(t, summary.SkillResults, 1, "only the clarification check ran")
	assert.Nil(t, summary.Artifact)

	record, err := ws.LoadRunRecord(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunAwaitingInput, record.Status)
	require.NotNil(t, record.Clarification)
	assert.Len(t, record.Clarification.Questions, 2)

	types := sink.types()
	assert.Equal(t, contracts.EventRunAwaitingInput, types[len(types)-1])
	assert.NotContains(t, types, contracts.EventArtifactDelivered)
}

func TestResumeAfterClarification(t *testing.T) {
	routes := defaultRoutes()
	routes["enough signal"] = `{"needs_clarification": true, "questions": ["Who is the target user?"], "reason": "vague"}`
	c, _, ws := newTestController(routes)

	paused, err := c.Start(context.Background(), fullRequest())
	require.NoError(t, err)
	require.Equal(t, contracts.RunAwaitingInput, paused.Status)

	// The clarify route still demands clarification; resume must pass
	// through without asking the model again.
	summary, err := c.Resume(context.Background(), paused.RunID, []string{"Freelance consultants"})
	require.NoError(t, err)

	assert.Equal(t, contracts.RunCompleted, summary.Status)
	assert.Equal(t, paused.RunID, summary.RunID)
	require.NotNil(t, summary.Artifact)

	record, err := ws.LoadRunRecord(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, contracts.RunCompleted, record.Status)
	assert.Nil(t, record.Clarification)
	assert.Contains(t, record.Request.Input.Message, "Clarification answers")
}

func TestResumeGuards(t *testing.T) {
	c, _, ws := newTestController(defaultRoutes())

	t.Run("unknown_run", func(t *testing.T) {
		_, err := c.Resume(context.Background(), "run-missing", []string{"x"})
		assert.Error(t, err)
	})

	t.Run("not_awaiting", func(t *testing.T) {
		require.NoError(t, ws.SaveRunRecord(context.Background(), &contracts.RunRecord{
			RunID:  "run-done",
			Status: contracts.RunCompleted,
		}))
		_, err := c.Resume(context.Background(), "run-done", []string{"x"})
		assert.Error(t, err)
	})

	t.Run("no_answers", func(t *testing.T) {
		require.NoError(t, ws.SaveRunRecord(context.Background(), &contracts.RunRecord{
			RunID:  "run-paused",
			Status: contracts.RunAwaitingInput,
		}))
		_, err := c.Resume(context.Background(), "run-paused", nil)
		assert.Error(t, err)
	})
}

func TestCancellationFailsRun(t *testing.T) {
	c, sink, ws := newTestController(defaultRoutes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := c.Start(ctx, fullRequest())
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, contracts.RunFailed, summary.Status)

	record, recErr := ws.LoadRunRecord(context.Background(), summary.RunID)
	require.NoError(t, recErr)
	assert.Equal(t, contracts.RunFailed, record.Status)
	assert.NotEmpty(t, record.Error)

	types := sink.types()
	assert.Equal(t, contracts.EventRunFailed, types[len(types)-1])
}

type hardGate struct{}

func (hardGate) Name() string { return "hard-gate" }
func (hardGate) Run(context.Context, *contracts.Artifact) ([]contracts.VerificationIssue, error) {
	return []contracts.VerificationIssue{{
		Check:    "hard-gate",
		Severity: contracts.SeverityError,
		Message:  "rejected",
	}}, nil
}

func TestVerificationFailureFailsRun(t *testing.T) {
	reg := manifest.Default()
	runner := skills.NewRunner(&routingGen{routes: defaultRoutes()}, reg, 2)
	verifier := verify.NewDefault(reg)
	verifier.Register(contracts.KindPRD, hardGate{})
	c := New(planner.New(reg), runner, verifier, workspace.NewMemory())
	c.SetEventSink(contracts.NoopSink{})

	summary, err := c.Start(context.Background(), fullRequest())
	require.Error(t, err)
	assert.Equal(t, contracts.RunFailed, summary.Status)
	require.NotNil(t, summary.Verification)
	assert.Equal(t, contracts.VerificationFail, summary.Verification.Status)
	// The artifact still surfaces for inspection.
	assert.NotNil(t, summary.Artifact)
}

// fakeSubagent records delegations and succeeds.
type fakeSubagent struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeSubagent) Execute(_ context.Context, rc *contracts.RunContext, name string) (*contracts.SubagentRunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return &contracts.SubagentRunSummary{
		Subagent: name,
		RunID:    rc.RunID + "-" + name,
		Status:   contracts.RunCompleted,
	}, nil
}

func TestSubagentDelegation(t *testing.T) {
	c, sink, _ := newTestController(defaultRoutes())
	sub := &fakeSubagent{}
	c.SetSubagents(sub)

	req := fullRequest()
	req.Attributes = map[string]string{"subagents": "persona,story-map"}

	summary, err := c.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, contracts.RunCompleted, summary.Status)
	require.Len(t, summary.Subagents, 2)

	sub.mu.Lock()
	delegated := append([]string(nil), sub.names...)
	sub.mu.Unlock()
	assert.ElementsMatch(t, []string{"persona", "story-map"}, delegated)

	types := sink.types()
	assert.Contains(t, types, contracts.EventSubagentStarted)
	assert.Contains(t, types, contracts.EventSubagentCompleted)
}

// silentSubagent returns neither a summary nor an error.
type silentSubagent struct{}

func (silentSubagent) Execute(context.Context, *contracts.RunContext, string) (*contracts.SubagentRunSummary, error) {
	return nil, nil
}

func TestSubagentExecutorReturningNothingFailsRun(t *testing.T) {
	c, _, _ := newTestController(defaultRoutes())
	c.SetSubagents(silentSubagent{})

	req := fullRequest()
	req.Attributes = map[string]string{"subagents": "persona"}

	summary, err := c.Start(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, contracts.RunFailed, summary.Status)
	assert.Empty(t, summary.Subagents)
}

func TestSubagentNodeWithoutExecutorFails(t *testing.T) {
	c, _, _ := newTestController(defaultRoutes())

	req := fullRequest()
	req.Attributes = map[string]string{"subagents": "persona"}

	summary, err := c.Start(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, contracts.RunFailed, summary.Status)
}

func TestConcurrentSiblingWritesStayConsistent(t *testing.T) {
	// Run several full graphs back to back; section writers race within each
	// run and must never cross-contaminate state.
	c, _, _ := newTestController(defaultRoutes())
	c.SetLimits(4, time.Minute, time.Minute)

	var wg sync.WaitGroup
	results := make([]*contracts.RunSummary, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := c.Start(context.Background(), fullRequest())
			if err == nil {
				results[i] = summary
			}
		}(i)
	}
	wg.Wait()

	for i, summary := range results {
		require.NotNil(t, summary, "run %d failed", i)
		assert.Equal(t, contracts.RunCompleted, summary.Status)
		doc, err := contracts.DecodePRDocument(summary.Artifact)
		require.NoError(t, err)
		assert.Len(t, doc.Sections.KeyFeatures, 2)
		assert.NotNil(t, doc.Sections.Solution)
	}
}
