package sync

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/njoerd114/calnotes/internal/model"
)

// DefaultRescheduleWindow is the largest start shift TitleWindowMatcher
// accepts by default.
const DefaultRescheduleWindow = 30 * 24 * time.Hour

// Matcher pairs a stored event that lost its key match with one of the still
// unclaimed incoming events, for providers that reissue tracking ids when an
// event moves. It returns nil when there is no match.
type Matcher interface {
	Match(existing *model.Event, candidates []*model.IncomingEvent, sc *SyncContext) *model.IncomingEvent
}

// TitleWindowMatcher matches on equal normalised title and local calendar,
// with start times at most Window apart. Among several candidates the one
// with the closest start wins. Events with a blank title never match.
type TitleWindowMatcher struct {
	Window time.Duration
}

// Match implements [Matcher].
func (m TitleWindowMatcher) Match(existing *model.Event, candidates []*model.IncomingEvent, sc *SyncContext) *model.IncomingEvent {
	title := NormalizeTitle(existing.Title)
	if title == "" {
		return nil
	}
	window := m.Window
	if window <= 0 {
		window = DefaultRescheduleWindow
	}

	var best *model.IncomingEvent
	var bestShift time.Duration
	for _, ie := range candidates {
		calID, ok := sc.LocalCalendarID(ie.TrackingCalendarID)
		if !ok || calID != existing.CalendarID {
			continue
		}
		if NormalizeTitle(ie.Title) != title {
			continue
		}
		shift := ie.StartedAt.Sub(existing.StartedAt).Abs()
		if shift > window {
			continue
		}
		if best == nil || shift < bestShift {
			best, bestShift = ie, shift
		}
	}
	return best
}

// NormalizeTitle case-folds, NFC-normalises and collapses whitespace so that
// cosmetic title edits do not defeat reschedule matching.
func NormalizeTitle(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
