package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Session is a note. It may reference the calendar event it was taken for.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	// EventID references an Event row; empty when the note is not bound.
	EventID string

	Title           string
	RawContent      string
	EnhancedContent string
	HasTranscript   bool

	// Event is a denormalised copy of the bound event, kept so the note can
	// follow "the same" occurrence after its Event row is replaced.
	Event *EventSnapshot
}

// IsEmpty reports whether the session holds no authored or derived content.
// Non-empty sessions protect their event from deletion.
func (s *Session) IsEmpty() bool {
	if s == nil {
		return true
	}
	return strings.TrimSpace(s.RawContent) == "" &&
		strings.TrimSpace(s.EnhancedContent) == "" &&
		!s.HasTranscript
}

// EventSnapshot is the event data embedded on a session.
type EventSnapshot struct {
	TrackingID         string    `json:"tracking_id"`
	CalendarID         string    `json:"calendar_id"`
	Title              string    `json:"title"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	Location           string    `json:"location,omitempty"`
	MeetingLink        string    `json:"meeting_link,omitempty"`
	Description        string    `json:"description,omitempty"`
	RecurrenceSeriesID string    `json:"recurrence_series_id,omitempty"`
	HasRecurrenceRules bool      `json:"has_recurrence_rules"`
	IsAllDay           bool      `json:"is_all_day"`
}

// Key returns the snapshot's EventKey with the day computed in loc.
func (s *EventSnapshot) Key(loc *time.Location) EventKey {
	return Key(s.TrackingID, s.HasRecurrenceRules, s.StartedAt, loc)
}

// SnapshotOf builds an EventSnapshot from an incoming event and the resolved
// local calendar id.
func SnapshotOf(ie *IncomingEvent, calendarID string) *EventSnapshot {
	return &EventSnapshot{
		TrackingID:         ie.TrackingID,
		CalendarID:         calendarID,
		Title:              ie.Title,
		StartedAt:          ie.StartedAt,
		EndedAt:            ie.EndedAt,
		Location:           ie.Location,
		MeetingLink:        ie.MeetingLink,
		Description:        ie.Description,
		RecurrenceSeriesID: ie.RecurrenceSeriesID,
		HasRecurrenceRules: ie.HasRecurrenceRules,
		IsAllDay:           ie.IsAllDay,
	}
}

// Equal reports whether two snapshots carry the same data.
func (s *EventSnapshot) Equal(o *EventSnapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.TrackingID == o.TrackingID &&
		s.CalendarID == o.CalendarID &&
		s.Title == o.Title &&
		s.StartedAt.Equal(o.StartedAt) &&
		s.EndedAt.Equal(o.EndedAt) &&
		s.Location == o.Location &&
		s.MeetingLink == o.MeetingLink &&
		s.Description == o.Description &&
		s.RecurrenceSeriesID == o.RecurrenceSeriesID &&
		s.HasRecurrenceRules == o.HasRecurrenceRules &&
		s.IsAllDay == o.IsAllDay
}

// ParseSnapshot decodes an embedded snapshot. Empty or malformed input
// yields nil: a snapshot that cannot be read is treated as absent.
func ParseSnapshot(raw string) *EventSnapshot {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var snap EventSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil
	}
	if snap.TrackingID == "" {
		return nil
	}
	return &snap
}

// EncodeSnapshot serialises a snapshot for storage. A nil snapshot encodes
// to the empty string.
func EncodeSnapshot(s *EventSnapshot) (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
