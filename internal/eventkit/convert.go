package eventkit

import (
	"strings"

	ekcalendar "github.com/BRO3886/go-eventkit/calendar"

	"github.com/njoerd114/calnotes/internal/model"
)

// eventToRaw converts an EventKit event to a model.RawEvent. EventKit shares
// one identifier across all occurrences of a series, so a recurring event's
// identifier doubles as its series id.
func eventToRaw(e *ekcalendar.Event, self model.EmailSet) model.RawEvent {
	raw := model.RawEvent{
		EventIdentifier:    e.ID,
		Calendar:           model.RawCalendarRef{ID: e.CalendarID, SourceTitle: e.Calendar},
		Title:              e.Title,
		StartDate:          e.StartDate,
		EndDate:            e.EndDate,
		IsAllDay:           e.AllDay,
		Location:           e.Location,
		URL:                e.URL,
		Notes:              e.Notes,
		HasRecurrenceRules: e.Recurring,
	}
	if e.Recurring {
		raw.SeriesID = e.ID
	}

	if org := organizerToParticipant(e.Organizer, self); org != nil {
		raw.Organizer = org
	}
	for _, a := range e.Attendees {
		raw.Attendees = append(raw.Attendees, model.RawParticipant{
			Name:          a.Name,
			Email:         stripMailto(a.Email),
			IsCurrentUser: self.Has(stripMailto(a.Email)),
		})
	}
	return raw
}

// organizerToParticipant interprets EventKit's organizer string, which holds
// either a display name or an address.
func organizerToParticipant(organizer string, self model.EmailSet) *model.RawParticipant {
	organizer = strings.TrimSpace(organizer)
	if organizer == "" {
		return nil
	}
	if addr := stripMailto(organizer); strings.Contains(addr, "@") && !strings.Contains(addr, " ") {
		return &model.RawParticipant{Email: addr, IsCurrentUser: self.Has(addr)}
	}
	return &model.RawParticipant{Name: organizer}
}

func stripMailto(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		return s[7:]
	}
	return s
}
