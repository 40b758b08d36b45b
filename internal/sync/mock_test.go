package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
)

// --- Mock Provider -----------------------------------------------------------

type mockProvider struct {
	mu     sync.Mutex
	events map[string][]model.RawEvent // calendar tracking id → events
	errs   map[string]error
	calls  int
}

func newMockProvider() *mockProvider {
	return &mockProvider{events: make(map[string][]model.RawEvent), errs: make(map[string]error)}
}

func (m *mockProvider) add(calendarTrackingID string, events ...model.RawEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[calendarTrackingID] = append(m.events[calendarTrackingID], events...)
}

func (m *mockProvider) set(calendarTrackingID string, events ...model.RawEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[calendarTrackingID] = events
}

func (m *mockProvider) fail(calendarTrackingID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[calendarTrackingID] = err
}

func (m *mockProvider) ListEvents(_ context.Context, calendarTrackingID string, from, to time.Time) ([]model.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := m.errs[calendarTrackingID]; err != nil {
		return nil, err
	}
	var out []model.RawEvent
	for _, e := range m.events[calendarTrackingID] {
		if e.StartDate.Before(from) || e.StartDate.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// --- Mock Store --------------------------------------------------------------

type mockStore struct {
	mu        sync.Mutex
	calendars []*model.Calendar
	events    map[string]*model.Event
	sessions  map[string]*model.Session
	humans    map[string]*model.Human
	mappings  map[string]*model.ParticipantMapping

	applyErr error
	applies  int
}

func newMockStore() *mockStore {
	return &mockStore{
		events:   make(map[string]*model.Event),
		sessions: make(map[string]*model.Session),
		humans:   make(map[string]*model.Human),
		mappings: make(map[string]*model.ParticipantMapping),
	}
}

func (m *mockStore) addCalendar(c *model.Calendar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars = append(m.calendars, c)
}

func (m *mockStore) addEvent(e *model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events[e.ID] = &cp
}

func (m *mockStore) addSession(s *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
}

func (m *mockStore) addHuman(h *model.Human) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.humans[h.ID] = &cp
}

func (m *mockStore) addMapping(mp *model.ParticipantMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mp
	m.mappings[mp.ID] = &cp
}

func (m *mockStore) ListCalendars(_ context.Context) ([]*model.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Calendar, 0, len(m.calendars))
	for _, c := range m.calendars {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) EventsInRange(_ context.Context, from, to time.Time) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for _, e := range m.events {
		if e.StartedAt.Before(from) || e.StartedAt.After(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockStore) ListSessions(_ context.Context) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) ListHumans(_ context.Context) ([]*model.Human, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Human, 0, len(m.humans))
	for _, h := range m.humans {
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) ListParticipantMappings(_ context.Context) ([]*model.ParticipantMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ParticipantMapping, 0, len(m.mappings))
	for _, mp := range m.mappings {
		cp := *mp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Apply interprets ops against copies of the tables and swaps them in only
// when every op succeeded.
func (m *mockStore) Apply(_ context.Context, ops ...store.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applies++
	if m.applyErr != nil {
		return m.applyErr
	}

	events := cloneMap(m.events)
	sessions := cloneMap(m.sessions)
	humans := cloneMap(m.humans)
	mappings := cloneMap(m.mappings)

	for i, op := range ops {
		switch o := op.(type) {
		case store.DeleteEvent:
			delete(events, o.ID)
		case store.InsertEvent:
			cp := *o.Event
			events[cp.ID] = &cp
		case store.UpdateEvent:
			cur, ok := events[o.Event.ID]
			if !ok {
				return fmt.Errorf("op %d (%s): %w", i, op, store.ErrNotFound)
			}
			upd := *o.Event
			upd.UserID, upd.CreatedAt, upd.CalendarID = cur.UserID, cur.CreatedAt, cur.CalendarID
			upd.Ignored, upd.Note = cur.Ignored, cur.Note
			events[upd.ID] = &upd
		case store.MoveSessions:
			for id, s := range sessions {
				if s.EventID == o.FromEventID {
					cp := *s
					cp.EventID = o.ToEventID
					sessions[id] = &cp
				}
			}
		case store.SetSessionEvent:
			s, ok := sessions[o.SessionID]
			if !ok {
				return fmt.Errorf("op %d (%s): %w", i, op, store.ErrNotFound)
			}
			cp := *s
			cp.Event = o.Snapshot
			sessions[o.SessionID] = &cp
		case store.InsertHuman:
			cp := *o.Human
			humans[cp.ID] = &cp
		case store.DeleteMapping:
			delete(mappings, o.ID)
		case store.InsertMapping:
			dup := false
			for _, existing := range mappings {
				if existing.SessionID == o.Mapping.SessionID && existing.HumanID == o.Mapping.HumanID {
					dup = true
				}
			}
			if !dup {
				cp := *o.Mapping
				mappings[cp.ID] = &cp
			}
		default:
			return errors.New("unknown op " + op.String())
		}
	}

	m.events, m.sessions, m.humans, m.mappings = events, sessions, humans, mappings
	return nil
}

func cloneMap[V any](in map[string]*V) map[string]*V {
	out := make(map[string]*V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *mockStore) event(id string) *model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id]
}

func (m *mockStore) session(id string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *mockStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockStore) humanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.humans)
}

func (m *mockStore) mappingsFor(sessionID string) []*model.ParticipantMapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ParticipantMapping
	for _, mp := range m.mappings {
		if mp.SessionID == sessionID {
			out = append(out, mp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HumanID < out[j].HumanID })
	return out
}

// --- Helpers -----------------------------------------------------------------

// seqIDs returns an IDFunc yielding prefix-1, prefix-2, ...
func seqIDs(prefix string) IDFunc {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
