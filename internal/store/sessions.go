package store

import (
	"context"
	"fmt"

	"github.com/njoerd114/calnotes/internal/model"
)

const sessionColumns = `id, user_id, created_at, event_id, title, raw_md, enhanced_md, has_transcript, event_json`

// ListSessions returns every session. Callers build their own indices
// (event id → sessions) once per sync run.
func (s *Store) ListSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns the session with the given id, or (nil, nil) if absent.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying session %q: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSession(rows)
}

// InsertSession stores a new session. Sessions are authored by the note
// editor; sync only rebinds their event id and snapshot.
func (s *Store) InsertSession(ctx context.Context, sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	snapshot, err := model.EncodeSnapshot(sess.Event)
	if err != nil {
		return fmt.Errorf("encoding event snapshot for session %q: %w", sess.ID, err)
	}
	const q = `
		INSERT INTO sessions (id, user_id, created_at, event_id, title, raw_md, enhanced_md, has_transcript, event_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		sess.ID, sess.UserID, formatTime(sess.CreatedAt), sess.EventID, sess.Title,
		sess.RawContent, sess.EnhancedContent, boolInt(sess.HasTranscript), snapshot,
	); err != nil {
		return fmt.Errorf("inserting session %q: %w", sess.ID, err)
	}
	return nil
}

func scanSession(sc scanner) (*model.Session, error) {
	var sess model.Session
	var createdAt, snapshot string
	var transcript int
	err := sc.Scan(
		&sess.ID, &sess.UserID, &createdAt, &sess.EventID, &sess.Title,
		&sess.RawContent, &sess.EnhancedContent, &transcript, &snapshot,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning session row: %w", err)
	}
	if sess.CreatedAt, err = parseColumn("session", sess.ID, "created_at", createdAt); err != nil {
		return nil, err
	}
	sess.HasTranscript = transcript != 0
	sess.Event = model.ParseSnapshot(snapshot)
	return &sess, nil
}
