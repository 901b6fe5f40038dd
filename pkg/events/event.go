package events

import "time"

// Topic carrying every conversation audit event.
const TopicQueryAudit = "query.audit"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "QUERY_ACCEPTED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the common implementation the constructors below build on.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewQueryAccepted records a turn that resolved to an executable filter.
// llmUsed reflects the strategy that actually produced the result.
func NewQueryAccepted(sessionID string, fields []string, llmUsed bool) Event {
	return BaseEvent{
		Type: "QUERY_ACCEPTED",
		Data: map[string]interface{}{
			"session_id": sessionID,
			"fields":     fields,
			"llm_used":   llmUsed,
		},
		OccurredAt: time.Now(),
	}
}

// NewClarificationAsked records a turn that ended in a question back to the
// user.
func NewClarificationAsked(sessionID string, llmUsed bool) Event {
	return BaseEvent{
		Type: "CLARIFICATION_ASKED",
		Data: map[string]interface{}{
			"session_id": sessionID,
			"llm_used":   llmUsed,
		},
		OccurredAt: time.Now(),
	}
}

// NewSessionReset records a full conversation wipe, whether user-requested
// or triggered by an extraction mode switch.
func NewSessionReset(sessionID, reason string) Event {
	return BaseEvent{
		Type: "SESSION_RESET",
		Data: map[string]interface{}{
			"session_id": sessionID,
			"reason":     reason,
		},
		OccurredAt: time.Now(),
	}
}
