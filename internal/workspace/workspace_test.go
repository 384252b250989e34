package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodagent/internal/contracts"
)

var (
	_ contracts.Workspace = (*FS)(nil)
	_ contracts.Workspace = (*Memory)(nil)
)

func testWorkspaces(t *testing.T) map[string]contracts.Workspace {
	t.Helper()
	fs := NewFS(filepath.Join(t.TempDir(), "runs"), true)
	t.Cleanup(func() { fs.Close() })
	return map[string]contracts.Workspace{
		"fs":     fs,
		"memory": NewMemory(),
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	for name, ws := range testWorkspaces(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ws.EnsureWorkspace(ctx, "run-1"))

			artifact := &contracts.Artifact{
				ID:      "prd-1",
				Kind:    contracts.KindPRD,
				Version: "1.0",
				Label:   "Product Requirements Document",
				Data:    map[string]any{"title": "Test"},
			}
			require.NoError(t, ws.WriteArtifact(ctx, "run-1", artifact))

			got, err := ws.ReadArtifact(ctx, "run-1", "prd-1")
			require.NoError(t, err)
			assert.Equal(t, artifact.ID, got.ID)
			assert.Equal(t, artifact.Kind, got.Kind)
			assert.Equal(t, artifact.Version, got.Version)

			list, err := ws.ListArtifacts(ctx, "run-1")
			require.NoError(t, err)
			require.Len(t, list, 1)

			_, err = ws.ReadArtifact(ctx, "run-1", "missing")
			assert.Error(t, err)
		})
	}
}

func TestRunRecordRoundTrip(t *testing.T) {
	for name, ws := range testWorkspaces(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := &contracts.RunRecord{
				RunID:  "run-2",
				Status: contracts.RunAwaitingInput,
				Request: contracts.RunRequest{
					ArtifactKind: contracts.KindPRD,
					Input:        contracts.RunInput{Message: "build a thing"},
				},
				CompletedSteps: []contracts.StepID{"check-clarification"},
				Clarification: &contracts.Clarification{
					Questions: []string{"Who is the target user?"},
				},
				StartedAt: time.Now().UTC(),
				UpdatedAt: time.Now().UTC(),
			}
			require.NoError(t, ws.SaveRunRecord(ctx, record))

			got, err := ws.LoadRunRecord(ctx, "run-2")
			require.NoError(t, err)
			assert.Equal(t, contracts.RunAwaitingInput, got.Status)
			require.NotNil(t, got.Clarification)
			assert.Equal(t, record.Clarification.Questions, got.Clarification.Questions)
			if diff := cmp.Diff(record.CompletedSteps, got.CompletedSteps); diff != "" {
				t.Errorf("completed steps (-want +got):\n%s", diff)
			}

			_, err = ws.LoadRunRecord(ctx, "never-started")
			assert.Error(t, err)
		})
	}
}

func TestEventLogAppendOrder(t *testing.T) {
	for name, ws := range testWorkspaces(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ws.EnsureWorkspace(ctx, "run-3"))

			types := []string{
				contracts.EventPlanCreated,
				contracts.EventStepStarted,
				contracts.EventStepCompleted,
				contracts.EventRunCompleted,
			}
			for i, typ := range types {
				require.NoError(t, ws.AppendEvent(ctx, contracts.ProgressEvent{
					Type:      typ,
					RunID:     "run-3",
					StepID:    contracts.StepID("s1"),
					Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
					Payload:   map[string]any{"i": float64(i)},
				}))
			}

			events, err := ws.GetEvents(ctx, "run-3")
			require.NoError(t, err)
			require.Len(t, events, len(types))
			for i, ev := range events {
				assert.Equal(t, types[i], ev.Type)
				assert.Equal(t, "run-3", ev.RunID)
			}
		})
	}
}

func TestTeardownRemovesEverything(t *testing.T) {
	for name, ws := range testWorkspaces(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ws.WriteArtifact(ctx, "run-4", &contracts.Artifact{ID: "a", Kind: contracts.KindPRD}))
			require.NoError(t, ws.Teardown(ctx, "run-4"))

			_, err := ws.ReadArtifact(ctx, "run-4", "a")
			assert.Error(t, err)
		})
	}
}

func TestRunIDValidation(t *testing.T) {
	ws := NewFS(t.TempDir(), false)
	ctx := context.Background()

	for _, bad := range []string{"", "../escape", "a/b", `a\b`} {
		assert.Error(t, ws.EnsureWorkspace(ctx, bad), "run id %q should be rejected", bad)
	}
}

func TestFSArtifactFilesAreIndentedJSON(t *testing.T) {
	root := t.TempDir()
	ws := NewFS(root, false)
	ctx := context.Background()

	require.NoError(t, ws.WriteArtifact(ctx, "run-5", &contracts.Artifact{
		ID:   "prd-1",
		Kind: contracts.KindPRD,
		Data: map[string]any{"title": "X"},
	}))

	data, err := os.ReadFile(filepath.Join(root, "run-5", "artifacts", "prd-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"id\"")
}
