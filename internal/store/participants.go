package store

import (
	"context"
	"fmt"

	"github.com/njoerd114/calnotes/internal/model"
)

// ListHumans returns every contact record.
func (s *Store) ListHumans(ctx context.Context) ([]*model.Human, error) {
	const q = `SELECT id, user_id, created_at, name, email FROM humans ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying humans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var humans []*model.Human
	for rows.Next() {
		var h model.Human
		var createdAt string
		if err := rows.Scan(&h.ID, &h.UserID, &createdAt, &h.Name, &h.Email); err != nil {
			return nil, fmt.Errorf("scanning human row: %w", err)
		}
		var err error
		if h.CreatedAt, err = parseColumn("human", h.ID, "created_at", createdAt); err != nil {
			return nil, err
		}
		humans = append(humans, &h)
	}
	return humans, rows.Err()
}

// ListParticipantMappings returns every session↔human link.
func (s *Store) ListParticipantMappings(ctx context.Context) ([]*model.ParticipantMapping, error) {
	const q = `SELECT id, user_id, created_at, session_id, human_id, source
		FROM session_participants ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying participant mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []*model.ParticipantMapping
	for rows.Next() {
		var m model.ParticipantMapping
		var createdAt, source string
		if err := rows.Scan(&m.ID, &m.UserID, &createdAt, &m.SessionID, &m.HumanID, &source); err != nil {
			return nil, fmt.Errorf("scanning participant mapping row: %w", err)
		}
		if m.CreatedAt, err = parseColumn("participant mapping", m.ID, "created_at", createdAt); err != nil {
			return nil, err
		}
		// Unknown provenance is read as manual so sync never prunes it.
		if m.Source, err = model.ParseParticipantSource(source); err != nil {
			m.Source = model.SourceManual
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

// InsertParticipantMapping stores a link created outside of sync (for
// example a participant the user added by hand).
func (s *Store) InsertParticipantMapping(ctx context.Context, m *model.ParticipantMapping) error {
	return s.Apply(ctx, InsertMapping{Mapping: m})
}

// InsertHumanRecord stores a contact created outside of sync.
func (s *Store) InsertHumanRecord(ctx context.Context, h *model.Human) error {
	return s.Apply(ctx, InsertHuman{Human: h})
}
