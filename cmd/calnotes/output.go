package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	syncp "github.com/njoerd114/calnotes/internal/sync"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
)

// newLogger returns a text logger on stderr at level and installs it as the
// default.
func newLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// printStats writes a one-run summary.
func printStats(w io.Writer, s syncp.Stats) {
	if s.NoOp {
		fmt.Fprintln(w, mutedStyle.Render("Nothing to sync: no user or no enabled calendar."))
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Sync summary"))
	rows := []struct {
		label string
		n     int
	}{
		{"Calendars", s.Calendars},
		{"Fetched", s.Fetched},
		{"Added", s.Added},
		{"Updated", s.Updated},
		{"Deleted", s.Deleted},
		{"Rescheduled", s.Rescheduled},
		{"Sessions rebound", s.SessionsRebound},
		{"People created", s.HumansCreated},
		{"Participants added", s.ParticipantsAdded},
		{"Participants removed", s.ParticipantsRemoved},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-22s %d\n", r.label+":", r.n)
	}
	if s.ProviderErrors > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  %d calendar(s) could not be fetched, see log", s.ProviderErrors)))
	}
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
