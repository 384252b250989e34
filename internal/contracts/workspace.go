package contracts

import "context"

// Workspace is the durable, swappable persistence sink for runs. All
// operations are keyed by runId; writing one run's data never touches
// another's.
type Workspace interface {
	// EnsureWorkspace prepares storage for a run. Idempotent.
	EnsureWorkspace(ctx context.Context, runID string) error

	// WriteArtifact persists an artifact under the run.
	WriteArtifact(ctx context.Context, runID string, artifact *Artifact) error

	// ReadArtifact loads one artifact by id.
	ReadArtifact(ctx context.Context, runID, artifactID string) (*Artifact, error)

	// ListArtifacts returns all artifacts persisted for the run.
	ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error)

	// SaveRunRecord persists the run's resumable state.
	SaveRunRecord(ctx context.Context, record *RunRecord) error

	// LoadRunRecord loads a previously saved run record.
	LoadRunRecord(ctx context.Context, runID string) (*RunRecord, error)

	// AppendEvent appends a progress event to the run's event log.
	AppendEvent(ctx context.Context, event ProgressEvent) error

	// GetEvents returns the run's event log in append order.
	GetEvents(ctx context.Context, runID string) ([]ProgressEvent, error)

	// Teardown removes all storage for a run.
	Teardown(ctx context.Context, runID string) error
}
