package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njoerd114/calnotes/internal/model"
)

const calendarColumns = `id, user_id, created_at, tracking_id, name, provider, enabled`

// ListCalendars returns every calendar row, enabled or not, ordered by name.
func (s *Store) ListCalendars(ctx context.Context) ([]*model.Calendar, error) {
	q := `SELECT ` + calendarColumns + ` FROM calendars ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying calendars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cals []*model.Calendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

// GetCalendar returns the calendar with the given local id, or (nil, nil)
// if it does not exist.
func (s *Store) GetCalendar(ctx context.Context, id string) (*model.Calendar, error) {
	q := `SELECT ` + calendarColumns + ` FROM calendars WHERE id = ?`
	c, err := scanCalendar(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	return c, err
}

// UpsertCalendar inserts a calendar, or refreshes the name of the existing
// row with the same provider and tracking id. The enabled flag of an existing
// row is left alone so re-discovery never overrides the user's choice.
// c.ID is updated to the stored row's id.
func (s *Store) UpsertCalendar(ctx context.Context, c *model.Calendar) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	const q = `
		INSERT INTO calendars (id, user_id, created_at, tracking_id, name, provider, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, tracking_id) DO UPDATE SET
		    name = excluded.name`
	if _, err := s.db.ExecContext(ctx, q,
		c.ID, c.UserID, formatTime(c.CreatedAt), c.TrackingID, c.Name, string(c.Provider), boolInt(c.Enabled),
	); err != nil {
		return fmt.Errorf("upserting calendar %q: %w", c.Name, err)
	}

	const sel = `SELECT id, enabled FROM calendars WHERE provider = ? AND tracking_id = ?`
	var enabled int
	if err := s.db.QueryRowContext(ctx, sel, string(c.Provider), c.TrackingID).Scan(&c.ID, &enabled); err != nil {
		return fmt.Errorf("reading back calendar %q: %w", c.Name, err)
	}
	c.Enabled = enabled != 0
	return nil
}

// SetCalendarEnabled toggles whether a calendar takes part in sync.
func (s *Store) SetCalendarEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE calendars SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	if err != nil {
		return fmt.Errorf("updating calendar %q: %w", id, err)
	}
	return expectOneRow(res, "calendar", id)
}

func scanCalendar(sc scanner) (*model.Calendar, error) {
	var c model.Calendar
	var createdAt, provider string
	var enabled int
	if err := sc.Scan(&c.ID, &c.UserID, &createdAt, &c.TrackingID, &c.Name, &provider, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning calendar row: %w", err)
	}
	var err error
	if c.CreatedAt, err = parseColumn("calendar", c.ID, "created_at", createdAt); err != nil {
		return nil, err
	}
	c.Provider = model.Provider(provider)
	c.Enabled = enabled != 0
	return &c, nil
}
