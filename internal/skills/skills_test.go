package skills

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodagent/internal/confidence"
	"prodagent/internal/contracts"
	"prodagent/internal/generation"
	"prodagent/internal/manifest"
	"prodagent/internal/workspace"
)

// fakeGen returns queued responses in order, repeating the last one.
type fakeGen struct {
	responses []string
	calls     int
}

func (f *fakeGen) Generate(_ context.Context, _ generation.Request) (*generation.Response, error) {
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &generation.Response{
		Text:  f.responses[idx],
		Usage: contracts.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func testRunContext(runID, message string) *contracts.RunContext {
	return &contracts.RunContext{
		RunID: runID,
		Request: contracts.RunRequest{
			ArtifactKind: contracts.KindPRD,
			Input:        contracts.RunInput{Message: message},
		},
		Metadata: map[string]any{},
	}
}

func newTestRunner(responses ...string) *Runner {
	return NewRunner(&fakeGen{responses: responses}, manifest.Default(), 2)
}

func TestClarificationCheck(t *testing.T) {
	t.Run("needs_clarification", func(t *testing.T) {
		r := newTestRunner(`{"needs_clarification": true, "questions": ["Who is the audience?", "What platform?"], "reason": "too vague"}`)
		rc := testRunContext("run-c1", "make an app")

		result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
			ID:   "check-clarification",
			Task: contracts.TaskSpec{Kind: contracts.TaskClarificationCheck},
		})
		require.NoError(t, err)

		assert.Equal(t, true, result.Metadata[MetaNeedsClarification])
		assert.Equal(t, "low", result.Confidence)
		clarification, ok := result.Output.(*contracts.Clarification)
		require.True(t, ok)
		assert.Len(t, clarification.Questions, 2)
	})

	t.Run("sufficient_input", func(t *testing.T) {
		r := newTestRunner(`{"needs_clarification": false, "questions": [], "reason": ""}`)
		rc := testRunContext("run-c2", "Build a PRD for an expense tracker for freelancers with offline mode")

		result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
			ID:   "check-clarification",
			Task: contracts.TaskSpec{Kind: contracts.TaskClarificationCheck},
		})
		require.NoError(t, err)

		assert.Equal(t, false, result.Metadata[MetaNeedsClarification])
		assert.Nil(t, result.Output)
	})

	t.Run("answered_runs_skip_the_model", func(t *testing.T) {
		gen := &fakeGen{responses: []string{`{"needs_clarification": true, "questions": ["?"]}`}}
		r := NewRunner(gen, manifest.Default(), 2)
		rc := testRunContext("run-c3", "make an app. Answers: for freelancers, mobile-first")
		rc.Metadata["clarification_answered"] = true

		result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
			ID:   "check-clarification",
			Task: contracts.TaskSpec{Kind: contracts.TaskClarificationCheck},
		})
		require.NoError(t, err)

		assert.Equal(t, false, result.Metadata[MetaNeedsClarification])
		assert.Zero(t, gen.calls, "resumed runs must not re-ask the model")
	})

	t.Run("flag_without_questions_passes_through", func(t *testing.T) {
		r := newTestRunner(`{"needs_clarification": true, "questions": [], "reason": "hmm"}`)
		rc := testRunContext("run-c4", "build something")

		result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
			ID:   "check-clarification",
			Task: contracts.TaskSpec{Kind: contracts.TaskClarificationCheck},
		})
		require.NoError(t, err)
		assert.Equal(t, false, result.Metadata[MetaNeedsClarification])
	})
}

func TestAnalyzeContextStoresState(t *testing.T) {
	r := newTestRunner(`{"summary": "Expense tracker for freelancers", "key_points": ["offline mode"], "assumptions": ["mobile-first"], "richness": 0.8}`)
	rc := testRunContext("run-a1", "Build an expense tracker for freelancers")

	result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "analyze-context",
		Task: contracts.TaskSpec{Kind: contracts.TaskAnalyzeContext},
	})
	require.NoError(t, err)

	assert.Equal(t, "high", result.Confidence)

	analysis := r.States().Get("run-a1").Analysis()
	require.NotNil(t, analysis)
	assert.Equal(t, "Expense tracker for freelancers", analysis.Summary)
	assert.InDelta(t, 0.8, analysis.Richness, 0.001)
}

func TestWriteSectionList(t *testing.T) {
	r := newTestRunner(`{
		"mode": "smart_merge",
		"operations": [],
		"proposed": ["Freelance consultants juggling multiple clients", "Small agency owners"],
		"confidence": "high",
		"reasons": ["explicit in request"]
	}`)
	rc := testRunContext("run-w1", "Build an expense tracker for freelance consultants juggling multiple clients and small agency owners, with offline receipts and tax exports")

	result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "write-target_users",
		Task: contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: contracts.SectionTargetUsers},
	})
	require.NoError(t, err)

	items, ok := result.Output.([]string)
	require.True(t, ok)
	want := []string{"Freelance consultants juggling multiple clients", "Small agency owners"}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("merged section (-want +got):\n%s", diff)
	}

	stored, populated := r.States().Get("run-w1").Section(contracts.SectionTargetUsers)
	require.True(t, populated)
	assert.Equal(t, items, stored)
}

func TestWriteSectionMergesIntoExisting(t *testing.T) {
	r := newTestRunner(`{
		"mode": "append",
		"operations": [{"action": "remove", "reference": "Project managers"}],
		"proposed": ["Small team leads"],
		"confidence": "medium",
		"reasons": []
	}`)
	rc := testRunContext("run-w2", "Swap project managers for small team leads in the target users")

	state := r.States().Get("run-w2")
	state.SetSection(contracts.SectionTargetUsers, []string{"Project managers"}, confidence.Assessment{Level: confidence.Medium}, nil)

	result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "write-target_users",
		Task: contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: contracts.SectionTargetUsers},
	})
	require.NoError(t, err)

	items := result.Output.([]string)
	if diff := cmp.Diff([]string{"Small team leads"}, items); diff != "" {
		t.Fatalf("merged section (-want +got):\n%s", diff)
	}
}

func TestWriteSectionSolutionValidation(t *testing.T) {
	// Summary below the minimum length must surface an issue and hold the
	// section below high confidence.
	r := newTestRunner(`{
		"mode": "replace",
		"proposed": {"summary": "Too short.", "approach": "", "differentiators": []},
		"confidence": "high",
		"reasons": []
	}`)
	rc := testRunContext("run-w3", "Write the solution for the expense tracker with offline mode and tax exports for freelancers")

	result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "write-solution",
		Task: contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: contracts.SectionSolution},
	})
	require.NoError(t, err)

	issues, ok := result.Metadata["issues"].([]string)
	require.True(t, ok)
	assert.NotEmpty(t, issues)
	assert.NotEqual(t, "high", result.Confidence)
}

func TestWriteSectionMetrics(t *testing.T) {
	r := newTestRunner(`{
		"mode": "smart_merge",
		"operations": [],
		"proposed": [{"name": "Weekly active users", "target": "5k", "timeframe": "6 months"}],
		"confidence": "medium",
		"reasons": []
	}`)
	rc := testRunContext("run-w4", "Add a weekly active users metric to the expense tracker PRD")

	result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "write-success_metrics",
		Task: contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: contracts.SectionSuccessMetrics},
	})
	require.NoError(t, err)

	metrics, ok := result.Output.([]contracts.Metric)
	require.True(t, ok)
	require.Len(t, metrics, 1)
	assert.Equal(t, "Weekly active users", metrics[0].Name)
}

func TestWriteSectionUnknownSection(t *testing.T) {
	r := newTestRunner(`{}`)
	rc := testRunContext("run-w5", "whatever")

	_, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "write-budget",
		Task: contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: "budget"},
	})
	assert.Error(t, err)
}

func TestAssembleArtifact(t *testing.T) {
	t.Run("graded_run_emits_v2", func(t *testing.T) {
		r := newTestRunner(`{"title": "Freelancer Expense Tracker"}`)
		rc := testRunContext("run-as1", "Build an expense tracker for freelancers")
		rc.Workspace = workspace.NewMemory()

		state := r.States().Get("run-as1")
		state.SetSection(contracts.SectionTargetUsers, []string{"Freelancers"}, confidence.Assessment{Level: confidence.High}, nil)
		state.SetSection(contracts.SectionKeyFeatures, []string{"Offline receipts", "Tax exports"}, confidence.Assessment{Level: confidence.High}, nil)

		result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
			ID:   "assemble-artifact",
			Task: contracts.TaskSpec{Kind: contracts.TaskAssembleArtifact, Artifact: contracts.KindPRD},
		})
		require.NoError(t, err)

		artifact, ok := result.Output.(*contracts.Artifact)
		require.True(t, ok)
		assert.Equal(t, "2.0", artifact.Version)
		assert.Equal(t, "high", artifact.Metadata.Confidence)
		// Written sections, in canonical order.
		assert.Equal(t, []string{contracts.SectionTargetUsers, contracts.SectionKeyFeatures},
			artifact.Metadata.Extras["sections_generated"])

		doc, err := contracts.DecodePRDocument(artifact)
		require.NoError(t, err)
		assert.Equal(t, "Freelancer Expense Tracker", doc.Title)
		require.NotNil(t, doc.Validation)
		// Unwritten mandatory sections surface as validation issues.
		assert.False(t, doc.Validation.IsValid)

		// Persisted to the workspace.
		stored, err := rc.Workspace.ReadArtifact(context.Background(), "run-as1", artifact.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.Version, stored.Version)

		// State is cleared once the artifact exists.
		assert.Zero(t, r.States().Len())
	})

	t.Run("ungraded_run_emits_v1", func(t *testing.T) {
		r := newTestRunner(`{"title": "Bare Document"}`)
		rc := testRunContext("run-as2", "Build a thing")

		result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
			ID:   "assemble-artifact",
			Task: contracts.TaskSpec{Kind: contracts.TaskAssembleArtifact, Artifact: contracts.KindPRD},
		})
		require.NoError(t, err)

		artifact := result.Output.(*contracts.Artifact)
		assert.Equal(t, "1.0", artifact.Version)
		assert.Empty(t, artifact.Metadata.Confidence)
		assert.Empty(t, artifact.Metadata.Extras["sections_generated"])
	})
}

func TestSeedFromExistingPRD(t *testing.T) {
	r := newTestRunner(`{
		"mode": "smart_merge",
		"operations": [],
		"proposed": ["remote-first teams"],
		"confidence": "medium",
		"reasons": []
	}`)
	rc := testRunContext("run-s1", "Add remote-first teams to the target users")
	rc.Request.Input.Context = &contracts.RequestContext{
		ExistingPRD: &contracts.Artifact{
			ID:   "prd-prev",
			Kind: contracts.KindPRD,
			Data: &contracts.PRDocument{
				Title: "Existing Doc",
				Sections: contracts.PRDSections{
					TargetUsers: []string{"Remote-first teams", "Startups"},
				},
			},
		},
	}

	result, err := r.Invoke(context.Background(), rc, &contracts.PlanNode{
		ID:   "write-target_users",
		Task: contracts.TaskSpec{Kind: contracts.TaskWriteSection, Section: contracts.SectionTargetUsers},
	})
	require.NoError(t, err)

	// Case-different duplicate keeps the inherited casing.
	items := result.Output.([]string)
	if diff := cmp.Diff([]string{"Remote-first teams", "Startups"}, items); diff != "" {
		t.Fatalf("seeded merge (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Existing Doc", r.States().Get("run-s1").Title())
}
