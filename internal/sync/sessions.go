package sync

import "github.com/njoerd114/calnotes/internal/model"

// SessionIndex is a per-run secondary index from event id to the sessions
// bound to it.
type SessionIndex struct {
	byEvent map[string][]*model.Session
}

// NewSessionIndex indexes sessions by their event id. Unbound sessions are
// left out.
func NewSessionIndex(sessions []*model.Session) *SessionIndex {
	idx := &SessionIndex{byEvent: make(map[string][]*model.Session)}
	for _, s := range sessions {
		if s.EventID == "" {
			continue
		}
		idx.byEvent[s.EventID] = append(idx.byEvent[s.EventID], s)
	}
	return idx
}

// ForEvent returns the sessions bound to eventID.
func (idx *SessionIndex) ForEvent(eventID string) []*model.Session {
	if idx == nil {
		return nil
	}
	return idx.byEvent[eventID]
}

// Protected reports whether eventID has at least one non-empty session and
// therefore must not be deleted.
func (idx *SessionIndex) Protected(eventID string) bool {
	for _, s := range idx.ForEvent(eventID) {
		if !s.IsEmpty() {
			return true
		}
	}
	return false
}

// moveSessions re-points in-memory sessions after reschedules have been
// applied in the store.
func moveSessions(sessions []*model.Session, moves map[string]string) {
	if len(moves) == 0 {
		return
	}
	for _, s := range sessions {
		if to, ok := moves[s.EventID]; ok {
			s.EventID = to
		}
	}
}
