package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies the lifecycle and streaming events emitted by agent
// loops and group coordinators.
type EventType string

// Event types in lifecycle order. Every run opens with exactly one
// EventStart or EventResume and terminates with exactly one EventEnd or
// EventError.
const (
	// EventStart opens a fresh run. Payload: "input" (plus "mode",
	// "members" and optionally "manager" on group runs).
	EventStart EventType = "start"
	// EventResume opens a run seeded with prior history. Payload: "input",
	// "step" (plus group keys as above).
	EventResume EventType = "resume"
	// EventStep announces the next reasoning cycle. Payload: "step"
	// (1-based counter).
	EventStep EventType = "step"
	// EventReasoningStream carries an incremental model output fragment.
	// Payload: "content".
	EventReasoningStream EventType = "reasoning_stream"
	// EventContentStream carries final answer content. Payload: "content".
	EventContentStream EventType = "content_stream"
	// EventDecision records one parsed capability invocation request.
	// Payload: "id", "tool", "arguments".
	EventDecision EventType = "decision"
	// EventToolResult records the completion of one invocation. Payload:
	// "id", "tool" and either "result" or "error".
	EventToolResult EventType = "tool_result"
	// EventEnd terminates a successful run. Payload: "final_answer" (plus
	// "votes" or "candidates" on group runs).
	EventEnd EventType = "end"
	// EventError terminates a failed run. Payload: "error", "kind". Failed
	// runs are not resumable.
	EventError EventType = "error"
)

// Terminal reports whether the event type closes its source's run.
func (t EventType) Terminal() bool { return t == EventEnd || t == EventError }

// Opening reports whether the event type opens a run.
func (t EventType) Opening() bool { return t == EventStart || t == EventResume }

// Payload carries the type-specific data of an Event. Keys are documented on
// the event type constants; consumers should treat unknown keys as opaque.
type Payload map[string]any

// Event is the unit of observation for a run. After emission it must be
// treated as immutable. Events are ephemeral: they are never persisted, only
// Message history survives a save/load cycle.
//
// Seq is a monotonically increasing index scoped to Source and assigned at
// emission. The counter lives on the emitting entity for its whole lifetime,
// so a source's events remain totally ordered across a merged stream even
// when the source runs several times (repeated delegation).
type Event struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Type      EventType `json:"type"`
	Payload   Payload   `json:"payload,omitempty"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an unsequenced event for source. Emitters assign Seq on
// delivery; construct events through an Emitter unless testing.
func NewEvent(source string, typ EventType, payload Payload) Event {
	return Event{
		ID:        NewID(),
		Source:    source,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewID returns a new unique identifier (UUID v4 string).
func NewID() string { return uuid.NewString() }

// AgentSource tags an event origin as the named agent loop.
func AgentSource(name string) string { return "Agent:" + name }

// GroupSource tags an event origin as the named group coordinator.
func GroupSource(name string) string { return "Group:" + name }

// FinalAnswer extracts the final answer from an end event payload.
func (e Event) FinalAnswer() (string, bool) {
	if e.Type != EventEnd {
		return "", false
	}
	s, ok := e.Payload["final_answer"].(string)
	return s, ok
}

// ErrorMessage extracts the failure message from an error event payload.
func (e Event) ErrorMessage() (string, bool) {
	if e.Type != EventError {
		return "", false
	}
	s, ok := e.Payload["error"].(string)
	return s, ok
}

// StepNumber extracts the cycle counter from a step event payload.
func (e Event) StepNumber() (int, bool) {
	if e.Type != EventStep {
		return 0, false
	}
	switch v := e.Payload["step"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
