package contracts

import "time"

// Progress event types emitted by the controller. The event stream is a side
// channel for observability: at-least-once to an optional sink, never part of
// the correctness contract.
const (
	EventPlanCreated        = "plan.created"
	EventStepStarted        = "step.started"
	EventStepCompleted      = "step.completed"
	EventStepFailed         = "step.failed"
	EventVerificationBegan  = "verification.started"
	EventVerificationEnded  = "verification.completed"
	EventArtifactDelivered  = "artifact.delivered"
	EventSubagentStarted    = "subagent.started"
	EventSubagentCompleted  = "subagent.completed"
	EventSubagentFailed     = "subagent.failed"
	EventRunAwaitingInput   = "run.awaiting-input"
	EventRunFailed          = "run.failed"
	EventRunCompleted       = "run.completed"
)

// ProgressEvent is one entry of the run's event stream.
type ProgressEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	StepID    StepID         `json:"step_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Message   string         `json:"message,omitempty"`
	Status    string         `json:"status,omitempty"`
}

// EventSink receives progress events. Implementations must not block the
// controller; a slow sink drops events rather than stalling a run.
type EventSink interface {
	Emit(event ProgressEvent)
}

// NoopSink discards every event. The controller behaves identically with or
// without a sink attached.
type NoopSink struct{}

func (NoopSink) Emit(ProgressEvent) {}

// ChannelSink forwards events to a channel, dropping when it is full.
type ChannelSink struct {
	C chan ProgressEvent
}

// NewChannelSink creates a buffered channel sink.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan ProgressEvent, buffer)}
}

func (s *ChannelSink) Emit(event ProgressEvent) {
	select {
	case s.C <- event:
	default:
		// Channel full, skip
	}
}
