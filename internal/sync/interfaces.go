// Package sync implements the calendar reconciliation engine for calnotes.
// It pulls events from a calendar provider, diffs them against the events,
// sessions and participant links held in the local store, and applies the
// resulting mutations in transactions.
//
// One run is a fixed pipeline:
//
//   - [BuildContext] resolves the enabled calendars and the sync window.
//   - [FetchIncoming] and [FetchExisting] load both sides (in parallel).
//   - [ReconcileEvents] computes the pure event diff.
//   - [ExecuteEvents] applies it in one transaction.
//   - [RebindSessions] refreshes event snapshots embedded on sessions.
//   - [ReconcileParticipants] and [ExecuteParticipants] sync participant links.
//
// [Syncer] wires the pipeline together; [Engine] schedules it.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
)

// Provider lists raw events of one provider calendar inside [from, to].
// Implemented by [eventkit.Adapter] and [ics.Provider].
type Provider interface {
	ListEvents(ctx context.Context, calendarTrackingID string, from, to time.Time) ([]model.RawEvent, error)
}

// Store provides access to the local database.
// Implemented by [store.Store].
type Store interface {
	ListCalendars(ctx context.Context) ([]*model.Calendar, error)
	EventsInRange(ctx context.Context, from, to time.Time) ([]*model.Event, error)
	ListSessions(ctx context.Context) ([]*model.Session, error)
	ListHumans(ctx context.Context) ([]*model.Human, error)
	ListParticipantMappings(ctx context.Context) ([]*model.ParticipantMapping, error)
	Apply(ctx context.Context, ops ...store.Op) error
}

// IDFunc allocates a new local row id.
type IDFunc func() string

// NewUUID is the default IDFunc.
func NewUUID() string { return uuid.NewString() }
