package state

import (
	"log"

	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/store"
)

// Manager handles conversation state transitions
type Manager struct {
	logger *log.Logger
}

// NewManager creates a new state manager
func NewManager(logger *log.Logger) *Manager {
	return &Manager{logger: logger}
}

// Apply folds one extraction outcome into the session: a clarification parks
// the partial spec and waits, a resolved spec replaces the active filter and
// clears any pending partial.
func (m *Manager) Apply(session *store.Session, result *extract.Result) {
	if result.NeedsClarification() {
		m.TransitionToAwaiting(session, result.Partial)
		return
	}
	m.TransitionToResolved(session, result.Spec)
}

// TransitionToAwaiting parks a partially understood filter until the user
// answers the pending question.
func (m *Manager) TransitionToAwaiting(session *store.Session, partial *filter.Spec) {
	session.Partial = partial
	session.State = store.StateAwaiting
	m.log("[STATE] Transitioned to AWAITING_CLARIFICATION: session %s", session.ID)
}

// TransitionToResolved installs a complete filter as the session's active one.
func (m *Manager) TransitionToResolved(session *store.Session, spec *filter.Spec) {
	session.Filter = spec
	session.Partial = nil
	session.State = store.StateResolved
	m.log("[STATE] Transitioned to RESOLVED: session %s, %d field(s)", session.ID, len(spec.Fields()))
}

// TransitionToIdle wipes all conversational context. Used on reset and on an
// extraction mode switch, where stale history must not leak across modes.
func (m *Manager) TransitionToIdle(session *store.Session) {
	session.Filter = nil
	session.Partial = nil
	session.Turns = nil
	session.State = store.StateIdle
	m.log("[STATE] Transitioned to IDLE: session %s", session.ID)
}

func (m *Manager) log(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
