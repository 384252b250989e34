package contracts

import "time"

// RunStatus is the run-level state machine:
// pending -> running -> completed | awaiting-input | failed.
type RunStatus string

const (
	RunPending       RunStatus = "pending"
	RunRunning       RunStatus = "running"
	RunCompleted     RunStatus = "completed"
	RunAwaitingInput RunStatus = "awaiting-input"
	RunFailed        RunStatus = "failed"
)

// Clarification captures the questions a clarification-check raised.
type Clarification struct {
	Questions []string `json:"questions"`
	Reason    string   `json:"reason,omitempty"`
}

// Usage records token accounting for one skill invocation.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// SkillResult is the outcome of one plan-node invocation.
type SkillResult struct {
	StepID     StepID         `json:"step_id"`
	SkillID    string         `json:"skill_id"`
	Output     any            `json:"output,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// SubagentRunSummary is what a nested subagent invocation reports back to
// its parent run.
type SubagentRunSummary struct {
	Subagent   string       `json:"subagent"`
	RunID      string       `json:"run_id"`
	Kind       ArtifactKind `json:"kind"`
	Status     RunStatus    `json:"status"`
	ArtifactID string       `json:"artifact_id,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// RunSummary is the wire-level result of Start/Resume.
type RunSummary struct {
	RunID        string               `json:"run_id"`
	Status       RunStatus            `json:"status"`
	Artifact     *Artifact            `json:"artifact,omitempty"`
	SkillResults []SkillResult        `json:"skill_results"`
	Verification *VerificationResult  `json:"verification,omitempty"`
	Subagents    []SubagentRunSummary `json:"subagents,omitempty"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
}

// RunRecord is the persisted shape of an in-flight or finished run. Saved to
// the workspace after every node so a run stays inspectable and resumable.
type RunRecord struct {
	RunID          string         `json:"run_id"`
	Request        RunRequest     `json:"request"`
	Status         RunStatus      `json:"status"`
	CompletedSteps []StepID       `json:"completed_steps,omitempty"`
	Clarification  *Clarification `json:"clarification,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Error          string         `json:"error,omitempty"`
}
