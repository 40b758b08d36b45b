// Package eventkit wraps the go-eventkit calendar library and converts
// native EventKit events into the provider-neutral [model.RawEvent].
//
// The adapter is read-only: calnotes never writes to the OS calendar. It
// accepts context.Context on every method for consistency with the other
// providers, even though the underlying cgo calls are not cancellable.
package eventkit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	ekcalendar "github.com/BRO3886/go-eventkit/calendar"

	"github.com/njoerd114/calnotes/internal/model"
)

// EventKitClient is the subset of [ekcalendar.Client] methods used by the
// adapter. Defining it as an interface allows mock injection in tests.
type EventKitClient interface {
	Calendars() ([]ekcalendar.Calendar, error)
	Events(start, end time.Time, opts ...ekcalendar.ListOption) ([]ekcalendar.Event, error)
}

// CalendarInfo describes an OS calendar for the setup wizard.
type CalendarInfo struct {
	ID     string
	Title  string
	Source string
}

// String returns a human-readable representation for selection prompts.
func (c CalendarInfo) String() string {
	if c.Source != "" {
		return fmt.Sprintf("%s (%s)", c.Title, c.Source)
	}
	return c.Title
}

// Adapter lists OS calendar events for the sync engine. Create one with
// [NewAdapter] or [NewAdapterWithClient].
type Adapter struct {
	client EventKitClient
	self   model.EmailSet
	log    *slog.Logger

	mu     sync.Mutex
	window eventWindow
}

// eventWindow holds the events of the last queried window grouped by
// calendar id. One sync run asks for every calendar with the same window,
// so EventKit is queried once per run.
type eventWindow struct {
	from, to time.Time
	byCal    map[string][]model.RawEvent
}

// NewAdapter creates an Adapter backed by a real EventKit client. This
// triggers the macOS TCC permissions prompt on first use. selfEmails are the
// user's own addresses, used to flag the current user among attendees.
func NewAdapter(selfEmails []string, logger *slog.Logger) (*Adapter, error) {
	c, err := ekcalendar.New()
	if err != nil {
		return nil, fmt.Errorf("initialising calendar client: %w", err)
	}
	return NewAdapterWithClient(c, selfEmails, logger), nil
}

// NewAdapterWithClient creates an Adapter with a caller-supplied client.
// Intended for testing with a mock [EventKitClient].
func NewAdapterWithClient(client EventKitClient, selfEmails []string, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, self: model.NewEmailSet(selfEmails...), log: logger}
}

// Calendars returns every OS calendar, sorted by title.
func (a *Adapter) Calendars(ctx context.Context) ([]CalendarInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}

	cals, err := a.client.Calendars()
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}

	out := make([]CalendarInfo, 0, len(cals))
	for _, c := range cals {
		out = append(out, CalendarInfo{ID: c.ID, Title: c.Title, Source: c.Source})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// ListEvents returns the events of one calendar starting inside [from, to].
func (a *Adapter) ListEvents(ctx context.Context, calendarTrackingID string, from, to time.Time) ([]model.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	byCal, err := a.eventsInWindow(from, to)
	if err != nil {
		return nil, fmt.Errorf("fetching events for calendar %q: %w", calendarTrackingID, err)
	}
	out := byCal[calendarTrackingID]
	a.log.Debug("fetched calendar events", "calendar_id", calendarTrackingID, "count", len(out))
	return out, nil
}

// eventsInWindow queries EventKit for all calendars unless the same window
// was queried last. Failed queries are not remembered.
func (a *Adapter) eventsInWindow(from, to time.Time) (map[string][]model.RawEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.window.byCal != nil && a.window.from.Equal(from) && a.window.to.Equal(to) {
		return a.window.byCal, nil
	}

	a.log.Debug("querying EventKit", "from", from, "to", to)
	events, err := a.client.Events(from, to)
	if err != nil {
		return nil, err
	}

	byCal := make(map[string][]model.RawEvent)
	for i := range events {
		ev := &events[i]
		if ev.StartDate.Before(from) || ev.StartDate.After(to) {
			continue
		}
		byCal[ev.CalendarID] = append(byCal[ev.CalendarID], eventToRaw(ev, a.self))
	}
	a.window = eventWindow{from: from, to: to, byCal: byCal}
	return byCal, nil
}
