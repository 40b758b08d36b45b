package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njoerd114/calnotes/internal/model"
)

// Op is one mutation inside an [Store.Apply] batch. The set of ops is closed:
// only this package can implement it.
type Op interface {
	fmt.Stringer
	apply(ctx context.Context, tx *sql.Tx, stamp string) error
}

// DeleteEvent removes an event row. Deleting an absent row is not an error.
type DeleteEvent struct {
	ID string
}

func (o DeleteEvent) String() string { return "delete event " + o.ID }

func (o DeleteEvent) apply(ctx context.Context, tx *sql.Tx, _ string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, o.ID)
	return err
}

// InsertEvent adds a new event row. CreatedAt defaults to the batch time.
type InsertEvent struct {
	Event *model.Event
}

func (o InsertEvent) String() string { return "insert event " + o.Event.ID }

func (o InsertEvent) apply(ctx context.Context, tx *sql.Tx, stamp string) error {
	e := o.Event
	created := stamp
	if !e.CreatedAt.IsZero() {
		created = formatTime(e.CreatedAt)
	}
	const q = `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		e.ID, e.UserID, created, e.TrackingID, e.CalendarID, e.Title,
		formatTime(e.StartedAt), formatTime(e.EndedAt), e.Location, e.MeetingLink, e.Description,
		e.RecurrenceSeriesID, boolInt(e.HasRecurrenceRules), boolInt(e.IsAllDay),
		boolInt(e.Ignored), e.Note,
	)
	return err
}

// UpdateEvent rewrites the provider-owned columns of an existing row.
// user_id, created_at, calendar_id, ignored and note are never written.
// A missing row fails with ErrNotFound.
type UpdateEvent struct {
	Event *model.Event
}

func (o UpdateEvent) String() string { return "update event " + o.Event.ID }

func (o UpdateEvent) apply(ctx context.Context, tx *sql.Tx, _ string) error {
	e := o.Event
	const q = `
		UPDATE events SET
		    tracking_id          = ?,
		    title                = ?,
		    started_at           = ?,
		    ended_at             = ?,
		    location             = ?,
		    meeting_link         = ?,
		    description          = ?,
		    recurrence_series_id = ?,
		    has_recurrence_rules = ?,
		    is_all_day           = ?
		WHERE id = ?`
	res, err := tx.ExecContext(ctx, q,
		e.TrackingID, e.Title, formatTime(e.StartedAt), formatTime(e.EndedAt),
		e.Location, e.MeetingLink, e.Description, e.RecurrenceSeriesID,
		boolInt(e.HasRecurrenceRules), boolInt(e.IsAllDay), e.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "event", e.ID)
}

// MoveSessions re-points every session bound to FromEventID at ToEventID.
type MoveSessions struct {
	FromEventID string
	ToEventID   string
}

func (o MoveSessions) String() string {
	return fmt.Sprintf("move sessions %s -> %s", o.FromEventID, o.ToEventID)
}

func (o MoveSessions) apply(ctx context.Context, tx *sql.Tx, _ string) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET event_id = ? WHERE event_id = ?`, o.ToEventID, o.FromEventID)
	return err
}

// SetSessionEvent writes a session's embedded event snapshot. The session's
// event id is left alone.
type SetSessionEvent struct {
	SessionID string
	Snapshot  *model.EventSnapshot
}

func (o SetSessionEvent) String() string { return "set session event " + o.SessionID }

func (o SetSessionEvent) apply(ctx context.Context, tx *sql.Tx, _ string) error {
	raw, err := model.EncodeSnapshot(o.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET event_json = ? WHERE id = ?`, raw, o.SessionID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "session", o.SessionID)
}

// InsertHuman adds a contact record.
type InsertHuman struct {
	Human *model.Human
}

func (o InsertHuman) String() string { return "insert human " + o.Human.ID }

func (o InsertHuman) apply(ctx context.Context, tx *sql.Tx, stamp string) error {
	h := o.Human
	created := stamp
	if !h.CreatedAt.IsZero() {
		created = formatTime(h.CreatedAt)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO humans (id, user_id, created_at, name, email) VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.UserID, created, h.Name, h.Email,
	)
	return err
}

// DeleteMapping removes a session↔human link. Deleting an absent row is not
// an error.
type DeleteMapping struct {
	ID string
}

func (o DeleteMapping) String() string { return "delete mapping " + o.ID }

func (o DeleteMapping) apply(ctx context.Context, tx *sql.Tx, _ string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM session_participants WHERE id = ?`, o.ID)
	return err
}

// InsertMapping adds a session↔human link. An existing link for the same
// pair is kept as is.
type InsertMapping struct {
	Mapping *model.ParticipantMapping
}

func (o InsertMapping) String() string { return "insert mapping " + o.Mapping.ID }

func (o InsertMapping) apply(ctx context.Context, tx *sql.Tx, stamp string) error {
	m := o.Mapping
	created := stamp
	if !m.CreatedAt.IsZero() {
		created = formatTime(m.CreatedAt)
	}
	source := m.Source
	if source == "" {
		source = model.SourceManual
	}
	const q = `
		INSERT INTO session_participants (id, user_id, created_at, session_id, human_id, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, human_id) DO NOTHING`
	_, err := tx.ExecContext(ctx, q, m.ID, m.UserID, created, m.SessionID, m.HumanID, string(source))
	return err
}
