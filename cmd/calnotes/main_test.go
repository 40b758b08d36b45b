package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/store"
	syncp "github.com/njoerd114/calnotes/internal/sync"
)

func TestHumanSize(t *testing.T) {
	cases := map[int64]string{
		512:         "512 B",
		2048:        "2.0 KB",
		5 << 20:     "5.0 MB",
		3 << 30 / 2: "1.5 GB",
	}
	for in, want := range cases {
		if got := humanSize(in); got != want {
			t.Errorf("humanSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, syncp.Stats{NoOp: true})
	if !strings.Contains(buf.String(), "Nothing to sync") {
		t.Errorf("no-op output = %q", buf.String())
	}

	buf.Reset()
	printStats(&buf, syncp.Stats{Calendars: 2, Added: 3, ProviderErrors: 1})
	out := buf.String()
	for _, want := range []string{"Calendars:", "Added:", "could not be fetched"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFindCalendar(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	for _, c := range []*model.Calendar{
		{ID: "c1", UserID: "u", TrackingID: "T1", Name: "Work", Provider: model.ProviderICS},
		{ID: "c2", UserID: "u", TrackingID: "T2", Name: "Home", Provider: model.ProviderICS},
		{ID: "c3", UserID: "u", TrackingID: "T3", Name: "Home", Provider: model.ProviderICS},
	} {
		if err := st.UpsertCalendar(ctx, c); err != nil {
			t.Fatalf("UpsertCalendar: %v", err)
		}
	}

	for ref, want := range map[string]string{"c1": "c1", "T2": "c2", "Work": "c1"} {
		got, err := findCalendar(ctx, st, ref)
		if err != nil {
			t.Errorf("findCalendar(%q): %v", ref, err)
			continue
		}
		if got.ID != want {
			t.Errorf("findCalendar(%q) = %q, want %q", ref, got.ID, want)
		}
	}
	if _, err := findCalendar(ctx, st, "Home"); err == nil {
		t.Error("expected ambiguity error for duplicate name")
	}
	if _, err := findCalendar(ctx, st, "nope"); err == nil {
		t.Error("expected error for unknown calendar")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"setup", "daemon", "sync-once", "status", "calendars", "uninstall"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
	if cmd, _, err := root.Find([]string{"calendars", "enable"}); err != nil || cmd.Name() != "enable" {
		t.Errorf("calendars enable not registered: %v", err)
	}
}
