// Package model defines shared types used across the sync engine, the
// provider adapters, and the local store.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// keySeparator joins a tracking id and an occurrence day in an EventKey.
const keySeparator = "::"

// EventKey is the derived identity of a calendar occurrence. Non-recurring
// events are keyed by tracking id alone so a rescheduled event still matches
// itself; recurring events are qualified by their start day so every
// occurrence of a series gets its own key.
type EventKey string

// Key derives the EventKey for an occurrence. The day is computed in loc;
// a nil loc means UTC.
func Key(trackingID string, recurring bool, startedAt time.Time, loc *time.Location) EventKey {
	if !recurring {
		return EventKey(trackingID)
	}
	if loc == nil {
		loc = time.UTC
	}
	return EventKey(trackingID + keySeparator + startedAt.In(loc).Format(time.DateOnly))
}

// Event is a calendar event row in the local store.
type Event struct {
	// ID is the local, store-generated identifier.
	ID        string
	UserID    string
	CreatedAt time.Time

	// TrackingID is the provider's identifier. Some providers reissue it when
	// an event is moved.
	TrackingID string

	// CalendarID references the local Calendar row.
	CalendarID string

	Title              string
	StartedAt          time.Time
	EndedAt            time.Time
	Location           string
	MeetingLink        string
	Description        string
	RecurrenceSeriesID string
	HasRecurrenceRules bool
	IsAllDay           bool

	// Ignored and Note are owned by the user; sync never writes them.
	Ignored bool
	Note    string
}

// Key returns the event's EventKey with the day computed in loc.
func (e *Event) Key(loc *time.Location) EventKey {
	return Key(e.TrackingID, e.HasRecurrenceRules, e.StartedAt, loc)
}

// ContentHash returns a SHA-256 digest of the provider-owned fields. Identity
// and user-owned columns are excluded so that a hash mismatch means the
// provider changed something.
func (e *Event) ContentHash() string {
	return contentHash(e.TrackingID, e.Title, e.StartedAt, e.EndedAt, e.Location,
		e.MeetingLink, e.Description, e.RecurrenceSeriesID, e.HasRecurrenceRules, e.IsAllDay)
}

// IncomingEvent is a freshly fetched, normalised provider event. It has no
// local id and is discarded after one reconciliation pass.
type IncomingEvent struct {
	// TrackingCalendarID is the provider's calendar identifier; the local
	// calendar id is resolved through the sync context.
	TrackingCalendarID string
	TrackingID         string

	Title              string
	StartedAt          time.Time
	EndedAt            time.Time
	Location           string
	MeetingLink        string
	Description        string
	RecurrenceSeriesID string
	HasRecurrenceRules bool
	IsAllDay           bool

	// Participants lists the organizer first, then attendees in provider order.
	Participants []Participant
}

// Key returns the incoming event's EventKey with the day computed in loc.
func (ie *IncomingEvent) Key(loc *time.Location) EventKey {
	return Key(ie.TrackingID, ie.HasRecurrenceRules, ie.StartedAt, loc)
}

// MergeInto returns a copy of existing with every provider-owned field
// replaced by the incoming values. Identity fields (ID, UserID, CreatedAt,
// CalendarID) and user-owned fields are preserved.
func (ie *IncomingEvent) MergeInto(existing *Event) *Event {
	merged := *existing
	merged.TrackingID = ie.TrackingID
	merged.Title = ie.Title
	merged.StartedAt = ie.StartedAt
	merged.EndedAt = ie.EndedAt
	merged.Location = ie.Location
	merged.MeetingLink = ie.MeetingLink
	merged.Description = ie.Description
	merged.RecurrenceSeriesID = ie.RecurrenceSeriesID
	merged.HasRecurrenceRules = ie.HasRecurrenceRules
	merged.IsAllDay = ie.IsAllDay
	return &merged
}

// ToEvent builds a new Event row from the incoming event.
func (ie *IncomingEvent) ToEvent(id, userID, calendarID string, createdAt time.Time) *Event {
	return ie.MergeInto(&Event{
		ID:         id,
		UserID:     userID,
		CalendarID: calendarID,
		CreatedAt:  createdAt,
	})
}

func contentHash(trackingID, title string, start, end time.Time, location, link, description, series string, recurring, allDay bool) string {
	h := sha256.New()
	for _, s := range []string{trackingID, title, formatHashTime(start), formatHashTime(end), location, link, description, series} {
		h.Write([]byte(s))
		h.Write([]byte("|"))
	}
	_, _ = fmt.Fprintf(h, "%t|%t", recurring, allDay)
	return hex.EncodeToString(h.Sum(nil))
}

func formatHashTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
