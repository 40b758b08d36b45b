package model

import (
	"fmt"
	"time"
)

// Provider names the external calendar source a Calendar row came from.
type Provider string

const (
	// ProviderApple is the macOS calendar store (EventKit).
	ProviderApple Provider = "apple"
	// ProviderGoogle is Google Calendar.
	ProviderGoogle Provider = "google"
	// ProviderOutlook is Microsoft Outlook.
	ProviderOutlook Provider = "outlook"
	// ProviderICS is a subscribed iCalendar feed.
	ProviderICS Provider = "ics"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderApple, ProviderGoogle, ProviderOutlook, ProviderICS:
		return p, nil
	default:
		return "", fmt.Errorf("unknown calendar provider %q", s)
	}
}

// Calendar is a calendar source tracked in the local store. Only enabled
// calendars take part in sync.
type Calendar struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	TrackingID string
	Name       string
	Provider   Provider
	Enabled    bool
}

// RawParticipant is a participant as reported by a provider.
type RawParticipant struct {
	Name          string
	Email         string
	IsCurrentUser bool
}

// RawCalendarRef identifies the calendar a RawEvent belongs to.
type RawCalendarRef struct {
	ID          string
	SourceTitle string
}

// RawEvent is the provider client's event record, before normalisation.
type RawEvent struct {
	EventIdentifier string
	Calendar        RawCalendarRef
	Title           string
	StartDate       time.Time
	EndDate         time.Time
	IsAllDay        bool
	Location        string
	URL             string
	Notes           string

	HasRecurrenceRules bool
	// SeriesID is set for occurrences of a recurring series when the provider
	// exposes a series identifier distinct from EventIdentifier.
	SeriesID string

	Organizer *RawParticipant
	Attendees []RawParticipant
}
