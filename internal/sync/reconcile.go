package sync

import (
	"time"

	"github.com/njoerd114/calnotes/internal/model"
)

// EventInput is everything ReconcileEvents needs. It holds no handles: the
// diff is a pure function of its input.
type EventInput struct {
	Context  *SyncContext
	Incoming []*model.IncomingEvent
	Existing []*model.Event
	Sessions *SessionIndex
	// Matcher detects reschedules among otherwise unmatched events. Nil
	// disables reschedule detection.
	Matcher Matcher
}

// Reschedule replaces an existing event with a new incoming one. Sessions
// move from the old row to the new row.
type Reschedule struct {
	OldEventID string
	New        *model.IncomingEvent
}

// EventPlan is the diff between incoming and stored events.
type EventPlan struct {
	// ToAdd holds incoming events with no stored counterpart.
	ToAdd []*model.IncomingEvent
	// ToUpdate holds merged rows whose provider-owned content changed.
	ToUpdate []*model.Event
	// ToDelete holds local ids of disabled-calendar and orphan events.
	ToDelete    []string
	Reschedules []Reschedule
	// Matched maps the key of every matched incoming event to the local id of
	// the stored row it matched, changed or not.
	Matched map[model.EventKey]string
}

// Empty reports whether the plan mutates nothing.
func (p *EventPlan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0 && len(p.Reschedules) == 0
}

// ReconcileEvents diffs incoming against existing events.
//
// Each stored event is matched by its key, then by bare tracking id. Stored
// events of disabled calendars and stored events left without a match are
// deleted, unless a non-empty session is bound to them. Incoming events that
// no stored event claimed are added. Each incoming event is claimed at most
// once. The matcher only sees stored events that found neither a key nor a
// tracking-id match.
func ReconcileEvents(in EventInput) EventPlan {
	sc := in.Context
	loc := sc.Location

	plan := EventPlan{Matched: make(map[model.EventKey]string)}

	// Incoming events deduplicated by key; the first occurrence wins.
	incoming := make([]*model.IncomingEvent, 0, len(in.Incoming))
	byKey := make(map[model.EventKey]*model.IncomingEvent, len(in.Incoming))
	byTrackingID := make(map[string]*model.IncomingEvent, len(in.Incoming))
	for _, ie := range in.Incoming {
		k := ie.Key(loc)
		if _, dup := byKey[k]; dup {
			continue
		}
		byKey[k] = ie
		incoming = append(incoming, ie)
		if _, ok := byTrackingID[ie.TrackingID]; !ok {
			byTrackingID[ie.TrackingID] = ie
		}
	}

	claimed := make(map[model.EventKey]bool, len(incoming))
	// unmatched holds stored events with no key or tracking-id match at all;
	// only these are offered to the matcher. lost holds events whose match was
	// already claimed by another stored row.
	var unmatched, lost []*model.Event

	for _, e := range in.Existing {
		if !sc.CalendarIDs[e.CalendarID] {
			if !in.Sessions.Protected(e.ID) {
				plan.ToDelete = append(plan.ToDelete, e.ID)
			}
			continue
		}

		match := byKey[e.Key(loc)]
		if match == nil && e.TrackingID != "" {
			match = byTrackingID[e.TrackingID]
		}
		if match == nil {
			unmatched = append(unmatched, e)
			continue
		}
		if claimed[match.Key(loc)] {
			lost = append(lost, e)
			continue
		}

		k := match.Key(loc)
		claimed[k] = true
		plan.Matched[k] = e.ID

		merged := match.MergeInto(e)
		if merged.ContentHash() != e.ContentHash() {
			plan.ToUpdate = append(plan.ToUpdate, merged)
		}
	}

	for _, e := range unmatched {
		if in.Matcher != nil {
			candidates := unclaimed(incoming, claimed, loc)
			if ie := in.Matcher.Match(e, candidates, sc); ie != nil {
				claimed[ie.Key(loc)] = true
				plan.Reschedules = append(plan.Reschedules, Reschedule{OldEventID: e.ID, New: ie})
				continue
			}
		}
		if !in.Sessions.Protected(e.ID) {
			plan.ToDelete = append(plan.ToDelete, e.ID)
		}
	}
	for _, e := range lost {
		if !in.Sessions.Protected(e.ID) {
			plan.ToDelete = append(plan.ToDelete, e.ID)
		}
	}

	for _, ie := range incoming {
		if !claimed[ie.Key(loc)] {
			plan.ToAdd = append(plan.ToAdd, ie)
		}
	}
	return plan
}

func unclaimed(incoming []*model.IncomingEvent, claimed map[model.EventKey]bool, loc *time.Location) []*model.IncomingEvent {
	out := make([]*model.IncomingEvent, 0, len(incoming))
	for _, ie := range incoming {
		if !claimed[ie.Key(loc)] {
			out = append(out, ie)
		}
	}
	return out
}
