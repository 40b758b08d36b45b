package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/njoerd114/calnotes/internal/model"
)

// Stats summarises one sync run.
type Stats struct {
	// NoOp is set when the run short-circuited (no user or no enabled
	// calendar) without fetching anything.
	NoOp bool

	Calendars      int
	Fetched        int
	ProviderErrors int

	Added       int
	Updated     int
	Deleted     int
	Rescheduled int
	Skipped     int

	SessionsRebound     int
	HumansCreated       int
	ParticipantsAdded   int
	ParticipantsRemoved int
}

// Options configures a Syncer.
type Options struct {
	UserID     string
	PastDays   int
	FutureDays int
	Location   *time.Location
	// Matcher enables reschedule detection; nil disables it.
	Matcher Matcher
	// NewID allocates row ids. Defaults to NewUUID.
	NewID IDFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// Syncer performs sync runs against one provider and one store. Runs are
// serialised: a run started while another is active waits for it.
type Syncer struct {
	provider Provider
	store    Store
	opts     Options
	log      *slog.Logger

	mu gosync.Mutex
}

// NewSyncer creates a Syncer.
func NewSyncer(provider Provider, st Store, opts Options, logger *slog.Logger) *Syncer {
	if opts.NewID == nil {
		opts.NewID = NewUUID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{provider: provider, store: st, opts: opts, log: logger}
}

// Run performs one full sync run. It returns a zero, NoOp Stats and a nil
// error when there is no user or no enabled calendar.
func (s *Syncer) Run(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats

	// 1. Context.
	cals, err := s.store.ListCalendars(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading calendars: %w", err)
	}
	sc, err := BuildContext(s.opts.UserID, cals, s.opts.Now(), ContextOptions{
		PastDays:   s.opts.PastDays,
		FutureDays: s.opts.FutureDays,
		Location:   s.opts.Location,
	})
	if errors.Is(err, ErrNoUser) || errors.Is(err, ErrNoCalendars) {
		s.log.Info("sync skipped", "reason", err.Error())
		return Stats{NoOp: true}, nil
	}
	if err != nil {
		return stats, err
	}
	stats.Calendars = len(sc.Calendars)

	// 2. Fetch both sides in parallel.
	var (
		fetched  FetchResult
		existing []*model.Event
		sessions []*model.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched = FetchIncoming(gctx, s.provider, sc, s.log)
		return nil
	})
	g.Go(func() error {
		var err error
		existing, err = FetchExisting(gctx, s.store, sc)
		return err
	})
	g.Go(func() error {
		var err error
		if sessions, err = s.store.ListSessions(gctx); err != nil {
			return fmt.Errorf("loading sessions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Fetched = len(fetched.Events)
	stats.ProviderErrors = fetched.Failed

	// 3. Diff and apply events.
	plan := ReconcileEvents(EventInput{
		Context:  sc,
		Incoming: fetched.Events,
		Existing: existing,
		Sessions: NewSessionIndex(sessions),
		Matcher:  s.opts.Matcher,
	})
	res, err := ExecuteEvents(ctx, s.store, &plan, sc, s.opts.NewID, s.log)
	if err != nil {
		return stats, err
	}
	stats.Added = res.Added
	stats.Updated = res.Updated
	stats.Deleted = res.Deleted
	stats.Rescheduled = res.Rescheduled
	stats.Skipped = res.Skipped
	moveSessions(sessions, res.Moves)

	// 4. Refresh embedded snapshots.
	rebinds := RebindSessions(sessions, fetched.Events, sc)
	if err := ExecuteRebinds(ctx, s.store, rebinds); err != nil {
		return stats, err
	}
	stats.SessionsRebound = len(rebinds)

	// 5. Participants.
	humans, err := s.store.ListHumans(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading humans: %w", err)
	}
	mappings, err := s.store.ListParticipantMappings(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading participant mappings: %w", err)
	}
	pplan := ReconcileParticipants(ParticipantInput{
		UserID:   sc.UserID,
		Location: sc.Location,
		Incoming: fetched.Events,
		EventIDs: res.EventIDs,
		Sessions: NewSessionIndex(sessions),
		Humans:   humans,
		Mappings: mappings,
		NewID:    s.opts.NewID,
	})
	if err := ExecuteParticipants(ctx, s.store, &pplan); err != nil {
		return stats, err
	}
	stats.HumansCreated = len(pplan.HumansToCreate)
	stats.ParticipantsAdded = len(pplan.ToAdd)
	stats.ParticipantsRemoved = len(pplan.ToDelete)

	s.log.Info("sync complete",
		"calendars", stats.Calendars,
		"fetched", stats.Fetched,
		"added", stats.Added,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"rescheduled", stats.Rescheduled,
		"participants_added", stats.ParticipantsAdded,
		"participants_removed", stats.ParticipantsRemoved,
		"provider_errors", stats.ProviderErrors,
	)
	return stats, nil
}
