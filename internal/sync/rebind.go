package sync

import (
	"context"
	"fmt"

	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
)

// SessionRebind is a refreshed event snapshot for one session.
type SessionRebind struct {
	SessionID string
	Snapshot  *model.EventSnapshot
}

// RebindSessions recomputes the embedded event snapshot of every session that
// carries one. The snapshot is keyed the same way as stored events, with the
// day taken in sc.Location, and replaced by the matching incoming event.
// Sessions without a match, or whose snapshot is already current, are left
// out. Authored content is never touched.
func RebindSessions(sessions []*model.Session, incoming []*model.IncomingEvent, sc *SyncContext) []SessionRebind {
	byKey := make(map[model.EventKey]*model.IncomingEvent, len(incoming))
	for _, ie := range incoming {
		k := ie.Key(sc.Location)
		if _, dup := byKey[k]; !dup {
			byKey[k] = ie
		}
	}

	var out []SessionRebind
	for _, sess := range sessions {
		if sess.Event == nil {
			continue
		}
		ie, ok := byKey[sess.Event.Key(sc.Location)]
		if !ok {
			continue
		}
		calID, ok := sc.LocalCalendarID(ie.TrackingCalendarID)
		if !ok {
			calID = sess.Event.CalendarID
		}
		snap := model.SnapshotOf(ie, calID)
		if snap.Equal(sess.Event) {
			continue
		}
		out = append(out, SessionRebind{SessionID: sess.ID, Snapshot: snap})
	}
	return out
}

// ExecuteRebinds writes the refreshed snapshots in one transaction.
func ExecuteRebinds(ctx context.Context, st Store, rebinds []SessionRebind) error {
	if len(rebinds) == 0 {
		return nil
	}
	ops := make([]store.Op, 0, len(rebinds))
	for _, r := range rebinds {
		ops = append(ops, store.SetSessionEvent{SessionID: r.SessionID, Snapshot: r.Snapshot})
	}
	if err := st.Apply(ctx, ops...); err != nil {
		return fmt.Errorf("rebinding session snapshots: %w", err)
	}
	return nil
}
