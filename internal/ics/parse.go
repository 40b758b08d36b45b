package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/njoerd114/calnotes/internal/model"
)

// vevent is a parsed VEVENT before recurrence expansion.
type vevent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	URL         string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Cancelled   bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on an override of one occurrence of a series.
	RecurrenceID *time.Time

	Organizer *model.RawParticipant
	Attendees []model.RawParticipant
}

// parseCalendar parses an ICS payload. Malformed VEVENTs are skipped; the
// returned count says how many.
func parseCalendar(body []byte, self model.EmailSet) ([]vevent, int, error) {
	if len(body) == 0 {
		return nil, 0, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parsing calendar: %w", err)
	}

	var out []vevent
	skipped := 0
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, self)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, ev)
	}
	return out, skipped, nil
}

func parseVEvent(ve *ical.VEvent, self model.EmailSet) (vevent, error) {
	var out vevent

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid
	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.URL = propValue(ve, ical.ComponentPropertyUrl)
	out.Cancelled = strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED")

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := parseICSTime(dtStart.Value, dtStart.ICalParameters, time.Local)
		if err != nil {
			return out, fmt.Errorf("parsing DTSTART: %w", err)
		}
		out.Start = start
		out.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseICSTime(dtEnd.Value, dtEnd.ICalParameters, time.Local); err == nil && end.After(start) {
				out.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("parsing DTSTART: %w", err)
		}
		out.Start = start
		out.End = start
		if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
			out.End = end
		}
	}

	out.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, p.ICalParameters, out.Start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil {
		if t, err := parseICSTime(rid.Value, rid.ICalParameters, out.Start.Location()); err == nil {
			out.RecurrenceID = &t
		}
	}

	if org := ve.GetProperty(ical.ComponentPropertyOrganizer); org != nil {
		p := participantOf(org.Value, org.ICalParameters, self)
		if p.Name != "" || p.Email != "" {
			out.Organizer = &p
		}
	}
	for _, a := range ve.Attendees() {
		p := participantOf(a.Value, a.ICalParameters, self)
		if p.Name == "" && p.Email == "" {
			continue
		}
		out.Attendees = append(out.Attendees, p)
	}

	return out, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// participantOf reads a CAL-ADDRESS property (ORGANIZER or ATTENDEE).
func participantOf(value string, params map[string][]string, self model.EmailSet) model.RawParticipant {
	email := strings.TrimSpace(value)
	if len(email) >= 7 && strings.EqualFold(email[:7], "mailto:") {
		email = email[7:]
	}
	if !strings.Contains(email, "@") {
		email = ""
	}
	return model.RawParticipant{
		Name:          firstParam(params, "CN"),
		Email:         email,
		IsCurrentUser: self.Has(email),
	}
}

func firstParam(params map[string][]string, key string) string {
	if vs := params[key]; len(vs) > 0 {
		return strings.Trim(strings.TrimSpace(vs[0]), `"`)
	}
	return ""
}

// isDateValue reports whether a DTSTART holds a DATE rather than a DATE-TIME.
func isDateValue(p *ical.IANAProperty) bool {
	if strings.EqualFold(firstParam(p.ICalParameters, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime parses a DATE or DATE-TIME value. TZID is honoured when it
// names a known zone; floating values use loc.
func parseICSTime(v string, params map[string][]string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if tzid := firstParam(params, "TZID"); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if loc == nil {
		loc = time.Local
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
