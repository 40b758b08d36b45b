package ics

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/njoerd114/calnotes/internal/model"
)

// maxOccurrences caps the expansion of a single series.
const maxOccurrences = 1000

// expand turns parsed VEVENTs into raw events starting inside [from, to].
// Occurrences of a series share the series UID as identifier and are flagged
// recurring; RECURRENCE-ID overrides replace the occurrence they name.
// Cancelled events and occurrences are dropped.
func expand(events []vevent, calendarID, calendarName string, from, to time.Time) ([]model.RawEvent, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("expand: window end %v before start %v", to, from)
	}

	bases := make(map[string][]vevent)
	overrides := make(map[string][]vevent)
	var order []string
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	ref := model.RawCalendarRef{ID: calendarID, SourceTitle: calendarName}
	var out []model.RawEvent
	for _, uid := range order {
		for _, base := range bases[uid] {
			if base.RRule == "" {
				if !base.Cancelled && inWindow(base.Start, from, to) {
					out = append(out, toRaw(base, base.Start, base.End, false, ref))
				}
				continue
			}
			occ, err := expandSeries(base, overrides[uid], from, to, ref)
			if err != nil {
				return nil, fmt.Errorf("expanding %q: %w", uid, err)
			}
			out = append(out, occ...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func expandSeries(base vevent, overrides []vevent, from, to time.Time, ref model.RawCalendarRef) ([]model.RawEvent, error) {
	r, err := rrule.StrToRRule(base.RRule)
	if err != nil {
		return nil, fmt.Errorf("parsing RRULE %q: %w", base.RRule, err)
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range base.ExDates {
		set.ExDate(ex.In(base.Start.Location()))
	}

	loc := base.Start.Location()
	starts := set.Between(from.In(loc), to.In(loc), true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	duration := base.End.Sub(base.Start)
	used := make([]bool, len(overrides))

	var out []model.RawEvent
	for _, start := range starts {
		if i := findOverride(overrides, start); i >= 0 {
			used[i] = true
			ov := overrides[i]
			if !ov.Cancelled && inWindow(ov.Start, from, to) {
				out = append(out, toRaw(ov, ov.Start, ov.End, true, ref))
			}
			continue
		}
		if base.Cancelled {
			continue
		}
		out = append(out, toRaw(base, start, start.Add(duration), true, ref))
	}

	// Overrides moved into the window from an occurrence outside it.
	for i, ov := range overrides {
		if used[i] || ov.Cancelled || !inWindow(ov.Start, from, to) {
			continue
		}
		out = append(out, toRaw(ov, ov.Start, ov.End, true, ref))
	}
	return out, nil
}

func findOverride(overrides []vevent, start time.Time) int {
	for i, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return i
		}
	}
	return -1
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func toRaw(ev vevent, start, end time.Time, recurring bool, ref model.RawCalendarRef) model.RawEvent {
	raw := model.RawEvent{
		EventIdentifier:    ev.UID,
		Calendar:           ref,
		Title:              ev.Summary,
		StartDate:          start,
		EndDate:            end,
		IsAllDay:           ev.AllDay,
		Location:           ev.Location,
		URL:                ev.URL,
		Notes:              ev.Description,
		HasRecurrenceRules: recurring,
		Organizer:          ev.Organizer,
		Attendees:          ev.Attendees,
	}
	if recurring {
		raw.SeriesID = ev.UID
	}
	return raw
}
