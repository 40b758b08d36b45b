package store

import (
	"context"
	"fmt"
	"time"

	"github.com/njoerd114/calnotes/internal/model"
)

const eventColumns = `id, user_id, created_at, tracking_id, calendar_id, title,
	started_at, ended_at, location, meeting_link, description,
	recurrence_series_id, has_recurrence_rules, is_all_day, ignored, note`

// EventsInRange returns every event whose start lies in [from, to], whatever
// the state of its calendar.
func (s *Store) EventsInRange(ctx context.Context, from, to time.Time) ([]*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events
		WHERE started_at >= ? AND started_at <= ?
		ORDER BY started_at, id`
	rows, err := s.db.QueryContext(ctx, q, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("querying events in range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns the event with the given id, or (nil, nil) if absent.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying event %q: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanEvent(rows)
}

func scanEvent(sc scanner) (*model.Event, error) {
	var e model.Event
	var createdAt, startedAt, endedAt string
	var recurring, allDay, ignored int

	err := sc.Scan(
		&e.ID, &e.UserID, &createdAt, &e.TrackingID, &e.CalendarID, &e.Title,
		&startedAt, &endedAt, &e.Location, &e.MeetingLink, &e.Description,
		&e.RecurrenceSeriesID, &recurring, &allDay, &ignored, &e.Note,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning event row: %w", err)
	}

	if e.CreatedAt, err = parseColumn("event", e.ID, "created_at", createdAt); err != nil {
		return nil, err
	}
	if e.StartedAt, err = parseColumn("event", e.ID, "started_at", startedAt); err != nil {
		return nil, err
	}
	if e.EndedAt, err = parseColumn("event", e.ID, "ended_at", endedAt); err != nil {
		return nil, err
	}
	e.HasRecurrenceRules = recurring != 0
	e.IsAllDay = allDay != 0
	e.Ignored = ignored != 0
	return &e, nil
}
