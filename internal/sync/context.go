package sync

import (
	"errors"
	"time"

	"github.com/njoerd114/calnotes/internal/model"
)

// Short-circuit conditions of BuildContext. A run that hits either is a no-op,
// not a failure.
var (
	ErrNoUser      = errors.New("no active user")
	ErrNoCalendars = errors.New("no enabled calendars")
)

const (
	DefaultPastDays   = 7
	DefaultFutureDays = 30
)

// ContextOptions tunes the sync window. Zero values select the defaults.
type ContextOptions struct {
	PastDays   int
	FutureDays int
	// Location is the reference timezone for the day part of recurring event
	// keys. Nil means time.Local.
	Location *time.Location
}

// SyncContext is the per-run view of which calendars take part and over
// which time window.
type SyncContext struct {
	UserID   string
	From     time.Time
	To       time.Time
	Location *time.Location

	// CalendarIDs holds the local ids of enabled calendars.
	CalendarIDs map[string]bool
	// TrackingIDToLocalID maps provider calendar ids to local calendar ids.
	TrackingIDToLocalID map[string]string
	// Calendars lists the enabled calendars in store order.
	Calendars []*model.Calendar
}

// BuildContext assembles the SyncContext for one run from the calendar rows.
func BuildContext(userID string, calendars []*model.Calendar, now time.Time, opts ContextOptions) (*SyncContext, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	past, future := opts.PastDays, opts.FutureDays
	if past <= 0 {
		past = DefaultPastDays
	}
	if future <= 0 {
		future = DefaultFutureDays
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	sc := &SyncContext{
		UserID:              userID,
		From:                now.AddDate(0, 0, -past),
		To:                  now.AddDate(0, 0, future),
		Location:            loc,
		CalendarIDs:         make(map[string]bool),
		TrackingIDToLocalID: make(map[string]string),
	}
	for _, c := range calendars {
		if !c.Enabled {
			continue
		}
		sc.CalendarIDs[c.ID] = true
		sc.TrackingIDToLocalID[c.TrackingID] = c.ID
		sc.Calendars = append(sc.Calendars, c)
	}
	if len(sc.Calendars) == 0 {
		return nil, ErrNoCalendars
	}
	return sc, nil
}

// LocalCalendarID resolves a provider calendar id to the local id.
func (sc *SyncContext) LocalCalendarID(trackingID string) (string, bool) {
	id, ok := sc.TrackingIDToLocalID[trackingID]
	return id, ok
}
