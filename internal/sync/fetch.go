package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/njoerd114/calnotes/internal/meetinglink"
	"github.com/njoerd114/calnotes/internal/model"
)

// maxConcurrentFetches bounds the per-calendar provider fan-out.
const maxConcurrentFetches = 4

// FetchResult is the outcome of FetchIncoming.
type FetchResult struct {
	Events []*model.IncomingEvent
	// Failed counts calendars whose provider call returned an error.
	Failed int
}

// FetchIncoming lists and normalises events for every enabled calendar
// concurrently. A provider error for one calendar is logged and that calendar
// contributes no events; it never fails the run. Output is ordered by
// calendar, then by provider order.
func FetchIncoming(ctx context.Context, p Provider, sc *SyncContext, logger *slog.Logger) FetchResult {
	perCal := make([][]*model.IncomingEvent, len(sc.Calendars))
	failed := make([]bool, len(sc.Calendars))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for i, cal := range sc.Calendars {
		g.Go(func() error {
			raws, err := p.ListEvents(ctx, cal.TrackingID, sc.From, sc.To)
			if err != nil {
				logger.Warn("listing provider events failed, skipping calendar",
					"calendar_id", cal.ID,
					"tracking_id", cal.TrackingID,
					"error", err,
				)
				failed[i] = true
				return nil
			}
			events := make([]*model.IncomingEvent, 0, len(raws))
			for j := range raws {
				if ie := Normalize(&raws[j], cal.TrackingID); ie != nil {
					events = append(events, ie)
				}
			}
			perCal[i] = events
			logger.Debug("fetched calendar events", "calendar_id", cal.ID, "count", len(events))
			return nil
		})
	}
	_ = g.Wait()

	var res FetchResult
	for i := range perCal {
		res.Events = append(res.Events, perCal[i]...)
		if failed[i] {
			res.Failed++
		}
	}
	return res
}

// Normalize converts a provider record into an IncomingEvent. Events without
// an identifier cannot be tracked and yield nil.
func Normalize(raw *model.RawEvent, calendarTrackingID string) *model.IncomingEvent {
	if raw.EventIdentifier == "" {
		return nil
	}
	calID := raw.Calendar.ID
	if calID == "" {
		calID = calendarTrackingID
	}

	ie := &model.IncomingEvent{
		TrackingCalendarID: calID,
		TrackingID:         raw.EventIdentifier,
		Title:              strings.TrimSpace(raw.Title),
		StartedAt:          raw.StartDate,
		EndedAt:            raw.EndDate,
		Location:           strings.TrimSpace(raw.Location),
		MeetingLink:        meetinglink.Resolve(raw.URL, raw.Notes, raw.Location),
		Description:        raw.Notes,
		RecurrenceSeriesID: raw.SeriesID,
		HasRecurrenceRules: raw.HasRecurrenceRules,
		IsAllDay:           raw.IsAllDay,
	}

	if raw.Organizer != nil {
		ie.Participants = append(ie.Participants, participantOf(*raw.Organizer, true))
	}
	for _, a := range raw.Attendees {
		ie.Participants = append(ie.Participants, participantOf(a, false))
	}
	return ie
}

func participantOf(rp model.RawParticipant, organizer bool) model.Participant {
	return model.Participant{
		Name:          strings.TrimSpace(rp.Name),
		Email:         strings.TrimSpace(rp.Email),
		IsOrganizer:   organizer,
		IsCurrentUser: rp.IsCurrentUser,
	}
}

// FetchExisting loads stored events starting inside the window, whatever the
// state of their calendar.
func FetchExisting(ctx context.Context, st Store, sc *SyncContext) ([]*model.Event, error) {
	events, err := st.EventsInRange(ctx, sc.From, sc.To)
	if err != nil {
		return nil, fmt.Errorf("loading stored events: %w", err)
	}
	return events, nil
}
