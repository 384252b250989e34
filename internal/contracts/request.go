// Package contracts defines the shared data model for the run orchestration
// engine: run requests, plan graphs, artifacts, skill results, progress events,
// and the workspace capability boundary.
//
// Everything here is plain data. The one rule: a RunRequest is immutable once a
// run starts, and an Artifact is immutable once constructed. Mutation happens
// only inside the skill runner's run-scoped state, never on these types.
package contracts

import (
	"errors"
	"strings"
	"time"
)

// ArtifactKind identifies the kind of artifact a run produces.
type ArtifactKind string

const (
	KindPRD      ArtifactKind = "prd"
	KindPersona  ArtifactKind = "persona"
	KindStoryMap ArtifactKind = "story-map"
	KindResearch ArtifactKind = "research"
)

// ErrMissingInput is returned when a run request carries no usable message.
// Rejected synchronously, before any planning or node execution.
var ErrMissingInput = errors.New("run request has no input message")

// RequestContext carries optional context the caller already has: a prior
// artifact being edited, pasted context material, conversation history.
type RequestContext struct {
	ContextPayload      string    `json:"context_payload,omitempty"`
	ExistingPRD         *Artifact `json:"existing_prd,omitempty"`
	TargetSection       string    `json:"target_section,omitempty"`
	ConversationHistory []Turn    `json:"conversation_history,omitempty"`
}

// Turn is a single conversation turn supplied as context.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// RunInput is the user-facing input of a run.
type RunInput struct {
	Message        string          `json:"message"`
	Context        *RequestContext `json:"context,omitempty"`
	TargetSections []string        `json:"target_sections,omitempty"`
}

// RunRequest describes one requested run. Immutable once a run starts.
type RunRequest struct {
	ArtifactKind ArtifactKind      `json:"artifact_kind"`
	Input        RunInput          `json:"input"`
	CreatedBy    string            `json:"created_by"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	IntentPlan   string            `json:"intent_plan,omitempty"`
}

// Validate rejects requests that cannot produce a run.
func (r *RunRequest) Validate() error {
	if strings.TrimSpace(r.Input.Message) == "" {
		return ErrMissingInput
	}
	return nil
}

// RunSettings holds the resolved generation settings for a run.
type RunSettings struct {
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// RunContext is created once per run and passed by reference to every task
// invocation. Never mutated after creation except for the opaque Metadata map.
type RunContext struct {
	RunID     string            `json:"run_id"`
	Request   RunRequest        `json:"request"`
	Settings  RunSettings       `json:"settings"`
	Workspace Workspace         `json:"-"`
	StartedAt time.Time         `json:"started_at"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}
