package store

import (
	"time"

	"ctgov-compliance-be/pkg/filter"
)

// Turn is one exchange in a conversation. Turns are immutable once appended
// and their order is preserved exactly as produced.
type Turn struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the active conversation state held in memory.
type Session struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`  // DETERMINISTIC | LLM
	State string `json:"state"` // IDLE | AWAITING_CLARIFICATION | RESOLVED

	Turns []Turn `json:"turns"`

	// Filter is the last accepted spec; nil until the first resolution.
	Filter *filter.Spec `json:"filter,omitempty"`

	// Partial carries the incomplete spec while a clarification is pending,
	// so the next message merges against it instead of starting over.
	Partial *filter.Spec `json:"partial,omitempty"`

	// Version is bumped on every committed mutation; the service uses it to
	// detect concurrent writers while an extraction was in flight.
	Version uint64 `json:"version"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StateIdle     = "IDLE"
	StateAwaiting = "AWAITING_CLARIFICATION"
	StateResolved = "RESOLVED"

	ModeDeterministic = "DETERMINISTIC"
	ModeLLM           = "LLM"
)

// ModeFor maps the caller-facing use_llm flag to a session mode.
func ModeFor(useLLM bool) string {
	if useLLM {
		return ModeLLM
	}
	return ModeDeterministic
}

// AppendTurn records one exchange at the end of the history.
func (s *Session) AppendTurn(role, text string, at time.Time) {
	s.Turns = append(s.Turns, Turn{Role: role, Text: text, CreatedAt: at})
}

// PriorFilter is the spec the next extraction should merge onto: the pending
// partial while clarifying, otherwise the last accepted filter.
func (s *Session) PriorFilter() *filter.Spec {
	if s.State == StateAwaiting && s.Partial != nil {
		return s.Partial
	}
	return s.Filter
}

// Clone returns a deep copy safe to read outside the store's lock.
func (s *Session) Clone() *Session {
	cp := &Session{
		ID:      s.ID,
		Mode:    s.Mode,
		State:   s.State,
		Version: s.Version,
	}
	if s.Filter != nil {
		cp.Filter = s.Filter.Clone()
	}
	if s.Partial != nil {
		cp.Partial = s.Partial.Clone()
	}
	cp.Turns = append([]Turn(nil), s.Turns...)
	return cp
}
