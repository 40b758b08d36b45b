package ics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/njoerd114/calnotes/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

const weeklyFeed = `
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup@example.com
SUMMARY:Standup
DTSTART:20260302T090000Z
DTEND:20260302T091500Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20260309T090000Z
ORGANIZER;CN=Boss:mailto:boss@example.com
ATTENDEE;CN=Ada Lovelace:mailto:ada@example.com
ATTENDEE;CN=Me:mailto:me@example.com
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
RECURRENCE-ID:20260316T090000Z
SUMMARY:Standup (moved)
DTSTART:20260316T100000Z
DTEND:20260316T101500Z
END:VEVENT
BEGIN:VEVENT
UID:offsite@example.com
SUMMARY:Offsite
DTSTART;VALUE=DATE:20260310
DTEND;VALUE=DATE:20260312
LOCATION:Lakehouse
DESCRIPTION:Join https://meet.google.com/abc-defg-hij
END:VEVENT
BEGIN:VEVENT
UID:cancelled@example.com
SUMMARY:Cancelled
STATUS:CANCELLED
DTSTART:20260305T120000Z
DTEND:20260305T130000Z
END:VEVENT
BEGIN:VEVENT
SUMMARY:No UID
DTSTART:20260305T120000Z
END:VEVENT
END:VCALENDAR
`

var (
	windowFrom = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windowTo   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

// ---------------------------------------------------------------------------
// parse + expand
// ---------------------------------------------------------------------------

func TestParseCalendar_SkipsMalformed(t *testing.T) {
	events, skipped, err := parseCalendar([]byte(crlf(weeklyFeed)), model.NewEmailSet("me@example.com"))
	if err != nil {
		t.Fatalf("parseCalendar: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}

	base := events[0]
	if base.RRule == "" || len(base.ExDates) != 1 {
		t.Errorf("base RRule=%q ExDates=%v", base.RRule, base.ExDates)
	}
	if base.Organizer == nil || base.Organizer.Email != "boss@example.com" || base.Organizer.Name != "Boss" {
		t.Errorf("Organizer = %+v", base.Organizer)
	}
	if len(base.Attendees) != 2 || base.Attendees[0].IsCurrentUser || !base.Attendees[1].IsCurrentUser {
		t.Errorf("Attendees = %+v", base.Attendees)
	}
	if events[1].RecurrenceID == nil {
		t.Error("override RecurrenceID = nil")
	}
	if !events[2].AllDay {
		t.Error("offsite AllDay = false, want true")
	}
	if !events[3].Cancelled {
		t.Error("cancelled event not flagged")
	}
}

func TestParseCalendar_Empty(t *testing.T) {
	if _, _, err := parseCalendar(nil, nil); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestExpand_RecurrenceExdateOverride(t *testing.T) {
	events, _, err := parseCalendar([]byte(crlf(weeklyFeed)), nil)
	if err != nil {
		t.Fatalf("parseCalendar: %v", err)
	}
	raws, err := expand(events, "feed-1", "Team", windowFrom, windowTo)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	var standups []model.RawEvent
	var offsite *model.RawEvent
	for i := range raws {
		switch raws[i].EventIdentifier {
		case "standup@example.com":
			standups = append(standups, raws[i])
		case "offsite@example.com":
			offsite = &raws[i]
		case "cancelled@example.com":
			t.Error("cancelled event was expanded")
		}
	}

	if len(standups) != 3 {
		t.Fatalf("standups = %d, want 3 (exdate removes one)", len(standups))
	}
	wantStarts := []time.Time{
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC),
	}
	for i, want := range wantStarts {
		if !standups[i].StartDate.Equal(want) {
			t.Errorf("standup[%d].StartDate = %v, want %v", i, standups[i].StartDate, want)
		}
		if !standups[i].HasRecurrenceRules || standups[i].SeriesID != "standup@example.com" {
			t.Errorf("standup[%d] recurrence = %v/%q", i, standups[i].HasRecurrenceRules, standups[i].SeriesID)
		}
		if standups[i].Calendar.ID != "feed-1" || standups[i].Calendar.SourceTitle != "Team" {
			t.Errorf("standup[%d].Calendar = %+v", i, standups[i].Calendar)
		}
	}
	if standups[1].Title != "Standup (moved)" {
		t.Errorf("override Title = %q", standups[1].Title)
	}
	if got := standups[2].EndDate.Sub(standups[2].StartDate); got != 15*time.Minute {
		t.Errorf("occurrence duration = %v, want 15m", got)
	}

	if offsite == nil {
		t.Fatal("offsite missing")
	}
	if !offsite.IsAllDay || offsite.HasRecurrenceRules || offsite.SeriesID != "" {
		t.Errorf("offsite = %+v", offsite)
	}
	if offsite.Location != "Lakehouse" {
		t.Errorf("offsite Location = %q", offsite.Location)
	}
}

func TestExpand_WindowFilters(t *testing.T) {
	events, _, err := parseCalendar([]byte(crlf(weeklyFeed)), nil)
	if err != nil {
		t.Fatalf("parseCalendar: %v", err)
	}
	from := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	raws, err := expand(events, "feed-1", "Team", from, windowTo)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(raws) != 1 || !raws[0].StartDate.Equal(time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("raws = %+v, want only the 23 March standup", raws)
	}
}

func TestExpand_InvertedWindow(t *testing.T) {
	if _, err := expand(nil, "f", "F", windowTo, windowFrom); err == nil {
		t.Error("expected error for inverted window")
	}
}

func TestParseICSTime(t *testing.T) {
	cases := []struct {
		value  string
		params map[string][]string
		want   time.Time
	}{
		{"20260302T090000Z", nil, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"20260302T090000", nil, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"20260302", nil, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"20260302T100000", map[string][]string{"TZID": {"Europe/Berlin"}}, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseICSTime(tc.value, tc.params, time.UTC)
		if err != nil {
			t.Errorf("parseICSTime(%q): %v", tc.value, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseICSTime(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
	if _, err := parseICSTime("  ", nil, time.UTC); err == nil {
		t.Error("expected error for blank value")
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://cal.example.com/private/secret-token/basic.ics"); got != "https://cal.example.com/..." {
		t.Errorf("redactURL = %q", got)
	}
	if got := redactURL("not a url"); got != "(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Fetcher
// ---------------------------------------------------------------------------

func TestFetcher_ConditionalAndFallback(t *testing.T) {
	var (
		hits   atomic.Int32
		broken atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if broken.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BODY"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), slog.Default())
	f.attempts = 1
	feed := Feed{ID: "feed-1", URL: srv.URL + "/cal.ics"}
	ctx := context.Background()

	for i, label := range []string{"fresh", "not modified", "server error"} {
		if i == 2 {
			broken.Store(true)
		}
		body, err := f.Fetch(ctx, feed)
		if err != nil {
			t.Fatalf("%s: Fetch: %v", label, err)
		}
		if string(body) != "BODY" {
			t.Errorf("%s: body = %q, want BODY", label, body)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestFetcher_OversizedBodyFallsBack(t *testing.T) {
	var big atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if big.Load() {
			_, _ = w.Write([]byte("BODY-GROWN-TOO-LARGE"))
			return
		}
		_, _ = w.Write([]byte("BODY"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), slog.Default())
	f.maxBody = 8
	feed := Feed{ID: "feed-1", URL: srv.URL}
	ctx := context.Background()

	if body, err := f.Fetch(ctx, feed); err != nil || string(body) != "BODY" {
		t.Fatalf("first Fetch = %q, %v; want BODY", body, err)
	}
	big.Store(true)
	body, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "BODY" {
		t.Errorf("body = %q, want cached BODY", body)
	}

	fresh := NewFetcher(srv.Client(), slog.Default())
	fresh.maxBody = 8
	if _, err := fresh.Fetch(ctx, feed); err == nil {
		t.Error("expected error for oversized body without cache")
	}
}

func TestFetcher_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), slog.Default())
	if _, err := f.Fetch(context.Background(), Feed{ID: "x", URL: srv.URL}); err == nil {
		t.Error("expected error for 404 without cached body")
	}
	if _, err := f.Fetch(context.Background(), Feed{ID: "x"}); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("BODY"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), slog.Default())
	body, err := f.Fetch(context.Background(), Feed{ID: "x", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "BODY" || hits.Load() != 2 {
		t.Errorf("body = %q hits = %d, want BODY after 2 hits", body, hits.Load())
	}
}

// ---------------------------------------------------------------------------
// retry
// ---------------------------------------------------------------------------

func TestRetry_SucceedsSecondAttempt(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("called %d times, want 2", calls)
	}
}

func TestRetry_PermanentStops(t *testing.T) {
	sentinel := errors.New("gone")
	calls := 0
	err := retry(context.Background(), 3, func() error {
		calls++
		return permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Errorf("called %d times, want 1", calls)
	}
}

func TestRetry_ExhaustsAndCancels(t *testing.T) {
	sentinel := errors.New("always")
	err := retry(context.Background(), 2, func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped sentinel", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := retry(ctx, 3, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestBackoffDelay_Bounds(t *testing.T) {
	for attempt := range 6 {
		d := backoffDelay(attempt)
		want := min(baseDelay*(1<<attempt), maxDelay)
		if d < want/2 || d >= want {
			t.Errorf("backoffDelay(%d) = %v, want in [%v, %v)", attempt, d, want/2, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

func TestProvider_ListEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(crlf(weeklyFeed)))
	}))
	defer srv.Close()

	feeds := []Feed{{ID: "team", Name: "Team", URL: srv.URL}}
	p := NewProvider(NewFetcher(srv.Client(), slog.Default()), feeds, []string{"me@example.com"}, slog.Default())

	raws, err := p.ListEvents(context.Background(), "team", windowFrom, windowTo)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(raws) != 4 {
		t.Errorf("events = %d, want 4 (3 standups + offsite)", len(raws))
	}
	for i := 1; i < len(raws); i++ {
		if raws[i].StartDate.Before(raws[i-1].StartDate) {
			t.Errorf("events not sorted at %d", i)
		}
	}

	if _, err := p.ListEvents(context.Background(), "unknown", windowFrom, windowTo); err == nil {
		t.Error("expected error for unknown feed")
	}
	if len(p.Feeds()) != 1 {
		t.Errorf("Feeds = %d, want 1", len(p.Feeds()))
	}
}
