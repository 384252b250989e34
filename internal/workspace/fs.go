// Package workspace persists runs to disk: one directory per run holding
// artifacts and the resumable run record as indented JSON, plus a SQLite
// event log. An in-memory implementation backs tests.
package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"prodagent/internal/contracts"
	"prodagent/internal/logging"
)

const (
	artifactsDir  = "artifacts"
	runRecordFile = "run.json"
	eventsDBFile  = "events.db"
)

// FS is the production Workspace: a directory tree rooted at Root.
//
//	<root>/<runID>/run.json
//	<root>/<runID>/artifacts/<artifactID>.json
//	<root>/<runID>/events.db
type FS struct {
	root    string
	eventDB bool

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewFS creates a filesystem workspace rooted at root. When eventDB is false
// events append to a JSONL file instead of SQLite.
func NewFS(root string, eventDB bool) *FS {
	return &FS{
		root:    root,
		eventDB: eventDB,
		dbs:     make(map[string]*sql.DB),
	}
}

func (w *FS) runDir(runID string) string {
	return filepath.Join(w.root, runID)
}

// EnsureWorkspace prepares the run directory. Idempotent.
func (w *FS) EnsureWorkspace(ctx context.Context, runID string) error {
	if err := validateRunID(runID); err != nil {
		return err
	}
	dir := w.runDir(runID)
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0755); err != nil {
		return fmt.Errorf("failed to create run workspace: %w", err)
	}
	if w.eventDB {
		if _, err := w.eventDBFor(ctx, runID); err != nil {
			return err
		}
	}
	logging.WorkspaceDebug("workspace ready for run %s at %s", runID, dir)
	return nil
}

// WriteArtifact persists an artifact as indented JSON.
func (w *FS) WriteArtifact(ctx context.Context, runID string, artifact *contracts.Artifact) error {
	if artifact == nil || artifact.ID == "" {
		return fmt.Errorf("artifact must have an id")
	}
	if err := w.EnsureWorkspace(ctx, runID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", artifact.ID, err)
	}

	path := filepath.Join(w.runDir(runID), artifactsDir, artifact.ID+".json")
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", artifact.ID, err)
	}
	logging.Workspace("run %s: wrote artifact %s (%s)", runID, artifact.ID, artifact.Kind)
	return nil
}

// ReadArtifact loads one artifact by id.
func (w *FS) ReadArtifact(_ context.Context, runID, artifactID string) (*contracts.Artifact, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	path := filepath.Join(w.runDir(runID), artifactsDir, artifactID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s not found for run %s", artifactID, runID)
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", artifactID, err)
	}
	var artifact contracts.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", artifactID, err)
	}
	return &artifact, nil
}

// ListArtifacts returns all artifacts for the run, sorted by id.
func (w *FS) ListArtifacts(ctx context.Context, runID string) ([]*contracts.Artifact, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	dir := filepath.Join(w.runDir(runID), artifactsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	var out []*contracts.Artifact
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		artifact, err := w.ReadArtifact(ctx, runID, strings.TrimSuffix(name, ".json"))
		if err != nil {
			logging.WorkspaceError("run %s: skipping unreadable artifact %s: %v", runID, name, err)
			continue
		}
		out = append(out, artifact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveRunRecord persists the resumable run record.
func (w *FS) SaveRunRecord(ctx context.Context, record *contracts.RunRecord) error {
	if record == nil || record.RunID == "" {
		return fmt.Errorf("run record must have a run id")
	}
	if err := w.EnsureWorkspace(ctx, record.RunID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	path := filepath.Join(w.runDir(record.RunID), runRecordFile)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// LoadRunRecord loads a previously saved run record.
func (w *FS) LoadRunRecord(_ context.Context, runID string) (*contracts.RunRecord, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(w.runDir(runID), runRecordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run record for %s", runID)
		}
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}
	var record contracts.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse run record: %w", err)
	}
	return &record, nil
}

// AppendEvent appends a progress event to the run's event log.
func (w *FS) AppendEvent(ctx context.Context, event contracts.ProgressEvent) error {
	if err := validateRunID(event.RunID); err != nil {
		return err
	}
	if !w.eventDB {
		return w.appendEventJSONL(event)
	}

	db, err := w.eventDBFor(ctx, event.RunID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO events (type, step_id, message, status, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.Type, string(event.StepID), event.Message, event.Status, string(payload),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents returns the run's events in append order.
func (w *FS) GetEvents(ctx context.Context, runID string) ([]contracts.ProgressEvent, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	if !w.eventDB {
		return w.readEventsJSONL(runID)
	}

	db, err := w.eventDBFor(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT type, step_id, message, status, payload, created_at FROM events ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []contracts.ProgressEvent
	for rows.Next() {
		var ev contracts.ProgressEvent
		var stepID, payload, createdAt string
		if err := rows.Scan(&ev.Type, &stepID, &ev.Message, &ev.Status, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.RunID = runID
		ev.StepID = contracts.StepID(stepID)
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("failed to parse event payload: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ev.Timestamp = ts
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Teardown removes all storage for a run.
func (w *FS) Teardown(_ context.Context, runID string) error {
	if err := validateRunID(runID); err != nil {
		return err
	}
	w.mu.Lock()
	if db, ok := w.dbs[runID]; ok {
		db.Close()
		delete(w.dbs, runID)
	}
	w.mu.Unlock()

	if err := os.RemoveAll(w.runDir(runID)); err != nil {
		return fmt.Errorf("failed to remove run workspace: %w", err)
	}
	logging.Workspace("tore down workspace for run %s", runID)
	return nil
}

// Close releases every open event database.
func (w *FS) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for runID, db := range w.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.dbs, runID)
	}
	return firstErr
}

func (w *FS) eventDBFor(ctx context.Context, runID string) (*sql.DB, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if db, ok := w.dbs[runID]; ok {
		return db, nil
	}

	dir := w.runDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run workspace: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, eventsDBFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	// SQLite handles one writer at a time; serialize through a single conn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		step_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event database: %w", err)
	}

	w.dbs[runID] = db
	return db, nil
}

func (w *FS) appendEventJSONL(event contracts.ProgressEvent) error {
	dir := w.runDir(event.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run workspace: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (w *FS) readEventsJSONL(runID string) ([]contracts.ProgressEvent, error) {
	data, err := os.ReadFile(filepath.Join(w.runDir(runID), "events.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	var out []contracts.ProgressEvent
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var ev contracts.ProgressEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("failed to parse event log line: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// validateRunID rejects ids that would escape the workspace root.
func validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if strings.ContainsAny(runID, "/\\") || strings.Contains(runID, "..") {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// half-written record.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
