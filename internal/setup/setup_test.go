package setup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/calnotes/internal/config"
	"github.com/njoerd114/calnotes/internal/eventkit"
	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// ---------------------------------------------------------------------------
// Prompter
// ---------------------------------------------------------------------------

func TestPrompter_StringDefaultAndRequired(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\n\nvalue\n"), &out)

	if got := p.String("Name", "def"); got != "def" {
		t.Errorf("String with default = %q, want def", got)
	}
	if got := p.String("Required", ""); got != "value" {
		t.Errorf("String required = %q, want value", got)
	}
	if !strings.Contains(out.String(), "required") {
		t.Error("expected a required hint after blank input")
	}
}

func TestPrompter_List(t *testing.T) {
	p := NewPrompter(strings.NewReader(" a@example.com, ,b@example.com \n"), io.Discard)
	got := p.List("Emails")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Errorf("List = %v", got)
	}
}

func TestPrompter_Duration(t *testing.T) {
	p := NewPrompter(strings.NewReader("5m\n2h\nbogus\n"), io.Discard)
	if got := p.Duration("Interval", time.Minute, 10*time.Second, time.Hour); got != 5*time.Minute {
		t.Errorf("Duration = %v, want 5m", got)
	}
	if got := p.Duration("Interval", time.Minute, 10*time.Second, time.Hour); got != time.Minute {
		t.Errorf("Duration out of range = %v, want default", got)
	}
	if got := p.Duration("Interval", time.Minute, 10*time.Second, time.Hour); got != time.Minute {
		t.Errorf("Duration invalid = %v, want default", got)
	}
}

func TestPrompter_MultiSelect(t *testing.T) {
	p := NewPrompter(strings.NewReader("9\n2, 1, 2\nall\n"), io.Discard)
	opts := []string{"a", "b", "c"}

	got, err := p.MultiSelect("Pick", opts)
	if err != nil {
		t.Fatalf("MultiSelect: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("MultiSelect = %v, want [1 0]", got)
	}

	got, err = p.MultiSelect("Pick", opts)
	if err != nil {
		t.Fatalf("MultiSelect all: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("MultiSelect all = %v", got)
	}

	if _, err := p.MultiSelect("Pick", opts); err == nil {
		t.Error("expected error at end of input")
	}
}

func TestPrompter_SelectAndConfirm(t *testing.T) {
	p := NewPrompter(strings.NewReader("0\n2\n\nyes\n"), io.Discard)
	idx, err := p.Select("Pick", []string{"a", "b"})
	if err != nil || idx != 1 {
		t.Errorf("Select = %d, %v, want 1", idx, err)
	}
	if !p.Confirm("Sure?", true) {
		t.Error("Confirm default yes = false")
	}
	if !p.Confirm("Sure?", false) {
		t.Error("Confirm yes = false")
	}
}

// ---------------------------------------------------------------------------
// Discovery and registration
// ---------------------------------------------------------------------------

type fakeLister struct {
	cals []eventkit.CalendarInfo
	err  error
}

func (f *fakeLister) Calendars(context.Context) ([]eventkit.CalendarInfo, error) {
	return f.cals, f.err
}

func TestDiscoverEventKit(t *testing.T) {
	l := &fakeLister{cals: []eventkit.CalendarInfo{{ID: "CAL-1", Title: "Work", Source: "iCloud"}}}
	got, err := DiscoverEventKit(context.Background(), l, slog.Default())
	if err != nil {
		t.Fatalf("DiscoverEventKit: %v", err)
	}
	if len(got) != 1 || got[0].TrackingID != "CAL-1" || got[0].Name != "Work (iCloud)" || got[0].Provider != model.ProviderApple {
		t.Errorf("discovered = %+v", got)
	}

	if _, err := DiscoverEventKit(context.Background(), &fakeLister{err: errors.New("denied")}, slog.Default()); err == nil {
		t.Error("expected error from lister")
	}
}

func TestRegister_EnableAndKeep(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	found := DiscoverFeeds([]config.FeedConfig{
		{ID: "team", Name: "Team", URL: "https://x.example.com/team.ics"},
		{ID: "holidays", URL: "https://x.example.com/h.ics"},
	})

	cals, err := Register(ctx, st, "u-1", found, func(d DiscoveredCalendar) bool { return d.TrackingID == "team" })
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(cals) != 2 || !cals[0].Enabled || cals[1].Enabled {
		t.Fatalf("registered = %+v", cals)
	}
	if cals[1].Name != "holidays" {
		t.Errorf("name fallback = %q, want holidays", cals[1].Name)
	}

	// Re-discovery without a selection keeps the stored flags and ids.
	again, err := Register(ctx, st, "u-1", found, nil)
	if err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if again[0].ID != cals[0].ID || !again[0].Enabled || again[1].Enabled {
		t.Errorf("re-registered = %+v", again)
	}

	stored, err := st.ListCalendars(ctx)
	if err != nil {
		t.Fatalf("ListCalendars: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored calendars = %d, want 2", len(stored))
	}
}

func TestFeedID(t *testing.T) {
	taken := map[string]bool{"work": true}
	cases := map[string]string{
		"Team Calendar": "team-calendar",
		"  Work ":       "work-2",
		"!!!":           "feed",
		"Ünïcode 2026":  "n-code-2026",
	}
	for in, want := range cases {
		if got := feedID(in, taken); got != want {
			t.Errorf("feedID(%q) = %q, want %q", in, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Agent
// ---------------------------------------------------------------------------

func TestAgent_RenderPlist(t *testing.T) {
	a := NewAgent("/Users/ada", "/Users/ada/.config/calnotes/config.yaml")
	plist, err := a.RenderPlist()
	if err != nil {
		t.Fatalf("RenderPlist: %v", err)
	}
	for _, want := range []string{
		"<string>" + AgentLabel + "</string>",
		"<string>/usr/local/bin/calnotes</string>",
		"<string>daemon</string>",
		"<string>/Users/ada/.config/calnotes/config.yaml</string>",
		"/Users/ada/Library/Logs/calnotes/calnotes.log",
	} {
		if !bytes.Contains(plist, []byte(want)) {
			t.Errorf("plist missing %q", want)
		}
	}
	if a.PlistPath() != "/Users/ada/Library/LaunchAgents/"+AgentLabel+".plist" {
		t.Errorf("PlistPath = %q", a.PlistPath())
	}
}

// ---------------------------------------------------------------------------
// Wizard
// ---------------------------------------------------------------------------

func TestWizard_ICSFlow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(home, "config.yaml")

	input := strings.Join([]string{
		"alice",                            // user id
		"me@example.com",                   // self emails
		"2",                                // ICS provider
		"https://cal.example.com/team.ics", // feed 1
		"Team Calendar",
		"https://cal.example.com/h.ics", // feed 2
		"Holidays",
		"",    // finish feeds
		"2",   // enable only Holidays
		"5m",  // sync interval
		"n",   // reschedule
	}, "\n") + "\n"

	var out bytes.Buffer
	wiz := NewWizard(strings.NewReader(input), &out, slog.Default())
	wiz.ConfigPath = cfgPath
	var st *store.Store
	wiz.OpenStore = func(path string) (CalendarStore, io.Closer, error) {
		s, err := store.Open(path)
		if err != nil {
			return nil, nil, err
		}
		st = s
		return s, io.NopCloser(nil), nil
	}
	t.Cleanup(func() {
		if st != nil {
			_ = st.Close()
		}
	})

	if err := wiz.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if cfg.UserID != "alice" || cfg.Provider != config.ProviderICS {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.ICSFeeds) != 2 || cfg.ICSFeeds[0].ID != "team-calendar" || cfg.ICSFeeds[1].ID != "holidays" {
		t.Errorf("feeds = %+v", cfg.ICSFeeds)
	}
	if cfg.SyncInterval != 5*time.Minute || cfg.Reschedule.Enabled {
		t.Errorf("sync settings = %v / %v", cfg.SyncInterval, cfg.Reschedule.Enabled)
	}
	if len(cfg.SelfEmails) != 1 {
		t.Errorf("SelfEmails = %v", cfg.SelfEmails)
	}

	cals, err := st.ListCalendars(context.Background())
	if err != nil {
		t.Fatalf("ListCalendars: %v", err)
	}
	enabled := 0
	for _, c := range cals {
		if c.Enabled {
			enabled++
			if c.TrackingID != "holidays" {
				t.Errorf("enabled calendar = %q, want holidays", c.TrackingID)
			}
		}
	}
	if len(cals) != 2 || enabled != 1 {
		t.Errorf("calendars = %d enabled = %d, want 2/1", len(cals), enabled)
	}
}
