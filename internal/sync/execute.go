package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
)

// EventResult is the outcome of ExecuteEvents.
type EventResult struct {
	// EventIDs maps the key of every matched or inserted incoming event to
	// its local event id.
	EventIDs map[model.EventKey]string
	// Moves maps old to new event ids for applied reschedules.
	Moves map[string]string

	Added       int
	Updated     int
	Deleted     int
	Rescheduled int
	// Skipped counts adds dropped because their calendar is no longer mapped.
	Skipped int
}

// ExecuteEvents applies plan to the store in a single transaction. Adds whose
// provider calendar has no local mapping are skipped silently.
func ExecuteEvents(ctx context.Context, st Store, plan *EventPlan, sc *SyncContext, newID IDFunc, logger *slog.Logger) (EventResult, error) {
	res := EventResult{
		EventIDs: make(map[model.EventKey]string, len(plan.Matched)+len(plan.ToAdd)),
		Moves:    make(map[string]string),
	}
	for k, id := range plan.Matched {
		res.EventIDs[k] = id
	}

	ops := make([]store.Op, 0, len(plan.ToDelete)+len(plan.ToUpdate)+len(plan.ToAdd)+3*len(plan.Reschedules))

	for _, id := range plan.ToDelete {
		ops = append(ops, store.DeleteEvent{ID: id})
	}
	for _, e := range plan.ToUpdate {
		ops = append(ops, store.UpdateEvent{Event: e})
	}

	insert := func(ie *model.IncomingEvent) (string, bool) {
		calID, ok := sc.LocalCalendarID(ie.TrackingCalendarID)
		if !ok {
			logger.Debug("skipping event of unmapped calendar",
				"tracking_id", ie.TrackingID,
				"calendar_tracking_id", ie.TrackingCalendarID,
			)
			res.Skipped++
			return "", false
		}
		id := newID()
		ops = append(ops, store.InsertEvent{Event: ie.ToEvent(id, sc.UserID, calID, time.Time{})})
		res.EventIDs[ie.Key(sc.Location)] = id
		return id, true
	}

	for _, ie := range plan.ToAdd {
		if _, ok := insert(ie); ok {
			res.Added++
		}
	}
	for _, r := range plan.Reschedules {
		newEventID, ok := insert(r.New)
		if !ok {
			continue
		}
		ops = append(ops,
			store.MoveSessions{FromEventID: r.OldEventID, ToEventID: newEventID},
			store.DeleteEvent{ID: r.OldEventID},
		)
		res.Moves[r.OldEventID] = newEventID
		res.Rescheduled++
	}

	if len(ops) == 0 {
		return res, nil
	}
	if err := st.Apply(ctx, ops...); err != nil {
		return EventResult{}, fmt.Errorf("applying event changes: %w", err)
	}

	res.Updated = len(plan.ToUpdate)
	res.Deleted = len(plan.ToDelete)
	return res, nil
}
