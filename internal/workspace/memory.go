package workspace

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"prodagent/internal/contracts"
)

// Memory is an in-process Workspace for tests and ephemeral runs.
type Memory struct {
	mu        sync.RWMutex
	runs      map[string]struct{}
	artifacts map[string]map[string]*contracts.Artifact
	records   map[string]*contracts.RunRecord
	events    map[string][]contracts.ProgressEvent
}

// NewMemory creates an empty in-memory workspace.
func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[string]struct{}),
		artifacts: make(map[string]map[string]*contracts.Artifact),
		records:   make(map[string]*contracts.RunRecord),
		events:    make(map[string][]contracts.ProgressEvent),
	}
}

func (m *Memory) EnsureWorkspace(_ context.Context, runID string) error {
	if err := validateRunID(runID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = struct{}{}
	if m.artifacts[runID] == nil {
		m.artifacts[runID] = make(map[string]*contracts.Artifact)
	}
	return nil
}

func (m *Memory) WriteArtifact(ctx context.Context, runID string, artifact *contracts.Artifact) error {
	if artifact == nil || artifact.ID == "" {
		return fmt.Errorf("artifact must have an id")
	}
	if err := m.EnsureWorkspace(ctx, runID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *artifact
	m.artifacts[runID][artifact.ID] = &clone
	return nil
}

func (m *Memory) ReadArtifact(_ context.Context, runID, artifactID string) (*contracts.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if artifact, ok := m.artifacts[runID][artifactID]; ok {
		clone := *artifact
		return &clone, nil
	}
	return nil, fmt.Errorf("artifact %s not found for run %s", artifactID, runID)
}

func (m *Memory) ListArtifacts(_ context.Context, runID string) ([]*contracts.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*contracts.Artifact
	for _, artifact := range m.artifacts[runID] {
		clone := *artifact
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveRunRecord(ctx context.Context, record *contracts.RunRecord) error {
	if record == nil || record.RunID == "" {
		return fmt.Errorf("run record must have a run id")
	}
	if err := m.EnsureWorkspace(ctx, record.RunID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *record
	m.records[record.RunID] = &clone
	return nil
}

func (m *Memory) LoadRunRecord(_ context.Context, runID string) (*contracts.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if record, ok := m.records[runID]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, fmt.Errorf("no run record for %s", runID)
}

func (m *Memory) AppendEvent(_ context.Context, event contracts.ProgressEvent) error {
	if err := validateRunID(event.RunID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.RunID] = append(m.events[event.RunID], event)
	return nil
}

func (m *Memory) GetEvents(_ context.Context, runID string) ([]contracts.ProgressEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contracts.ProgressEvent, len(m.events[runID]))
	copy(out, m.events[runID])
	return out, nil
}

func (m *Memory) Teardown(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	delete(m.artifacts, runID)
	delete(m.records, runID)
	delete(m.events, runID)
	return nil
}
