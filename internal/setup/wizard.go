package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/calnotes/internal/config"
	"github.com/njoerd114/calnotes/internal/eventkit"
)

// Wizard guides the user through first-run configuration, calendar
// selection and installation.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer

	// ConfigPath is where the config is written. Defaults to
	// [config.DefaultPath].
	ConfigPath string

	// OpenStore opens the calendar store at the configured db path.
	OpenStore func(path string) (CalendarStore, io.Closer, error)

	// NewLister creates the OS calendar lister. Defaults to an EventKit
	// adapter.
	NewLister func(selfEmails []string) (CalendarLister, error)

	// Install installs the background agent. Nil skips the offer.
	Install func(configPath string) error
}

// NewWizard creates a Wizard wired to the given I/O and logger.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		logger: logger,
		w:      w,
		NewLister: func(selfEmails []string) (CalendarLister, error) {
			return eventkit.NewAdapter(selfEmails, logger)
		},
	}
}

// Run executes the interactive setup wizard.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to calnotes setup!\n")
	fmt.Fprintf(wiz.w, "This wizard links your calendars to your meeting notes.\n\n")

	cfgPath := wiz.ConfigPath
	if cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		cfgPath = p
	}

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return wiz.offerInstall(cfgPath)
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: account and provider.
	fmt.Fprintf(wiz.w, "Step 1/4: Account\n")
	cfg := &config.Config{}
	cfg.UserID = wiz.prompt.String("User id", os.Getenv("USER"))
	cfg.SelfEmails = wiz.prompt.List("Your email addresses (comma-separated, optional)")

	idx, err := wiz.prompt.Select("Calendar source", []string{
		"macOS Calendar (EventKit)",
		"ICS feed subscriptions",
	})
	if err != nil {
		return fmt.Errorf("selecting provider: %w", err)
	}
	cfg.Provider = config.ProviderEventKit
	if idx == 1 {
		cfg.Provider = config.ProviderICS
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 2: calendars.
	fmt.Fprintf(wiz.w, "Step 2/4: Calendars\n")
	found, err := wiz.discover(ctx, cfg)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("no calendars found")
	}
	options := make([]string, len(found))
	for i, d := range found {
		options[i] = d.String()
	}
	picked, err := wiz.prompt.MultiSelect("Calendars to sync", options)
	if err != nil {
		return fmt.Errorf("selecting calendars: %w", err)
	}
	enabled := make(map[string]bool, len(picked))
	for _, i := range picked {
		enabled[found[i].TrackingID] = true
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: sync settings.
	fmt.Fprintf(wiz.w, "Step 3/4: Sync Settings\n")
	cfg.SyncInterval = wiz.prompt.Duration("How often to sync calendars?", config.DefaultSyncInterval, 10*time.Second, time.Hour)
	cfg.Reschedule.Enabled = wiz.prompt.Confirm("Carry notes over when a meeting is moved?", true)
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: save.
	fmt.Fprintf(wiz.w, "Step 4/4: Save Configuration\n")
	if cfg.DBPath == "" {
		p, err := config.DefaultDBPath()
		if err != nil {
			return err
		}
		cfg.DBPath = p
	}
	if err := cfg.Write(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n", cfgPath)

	if wiz.OpenStore != nil {
		st, closer, err := wiz.OpenStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() { _ = closer.Close() }()

		cals, err := Register(ctx, st, cfg.UserID, found, func(d DiscoveredCalendar) bool {
			return enabled[d.TrackingID]
		})
		if err != nil {
			return fmt.Errorf("registering calendars: %w", err)
		}
		fmt.Fprintf(wiz.w, "  ✓ %d calendar(s) registered, %d enabled\n", len(cals), len(enabled))
	}
	fmt.Fprintf(wiz.w, "\n")

	return wiz.offerInstall(cfgPath)
}

// discover lists the calendars of the chosen provider. For ICS the feeds are
// entered here and stored in cfg.
func (wiz *Wizard) discover(ctx context.Context, cfg *config.Config) ([]DiscoveredCalendar, error) {
	if cfg.Provider == config.ProviderICS {
		fmt.Fprintf(wiz.w, "  Add ICS feeds (empty URL to finish):\n")
		taken := make(map[string]bool)
		for {
			u := wiz.prompt.Optional("Feed URL")
			if u == "" {
				break
			}
			name := wiz.prompt.String("Feed name", "Calendar")
			id := feedID(name, taken)
			taken[id] = true
			cfg.ICSFeeds = append(cfg.ICSFeeds, config.FeedConfig{ID: id, Name: name, URL: u})
			fmt.Fprintf(wiz.w, "  ✓ Added %q\n", name)
		}
		return DiscoverFeeds(cfg.ICSFeeds), nil
	}

	fmt.Fprintf(wiz.w, "  Discovering calendars (may trigger permissions prompt)...\n")
	lister, err := wiz.NewLister(cfg.SelfEmails)
	if err != nil {
		return nil, fmt.Errorf("initialising calendar client: %w", err)
	}
	found, err := DiscoverEventKit(ctx, lister, wiz.logger)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(wiz.w, "  Found %d calendar(s)\n", len(found))
	return found, nil
}

// offerInstall asks whether to install the background agent.
func (wiz *Wizard) offerInstall(cfgPath string) error {
	if wiz.Install == nil {
		return nil
	}
	if !wiz.prompt.Confirm("Install as background agent (starts on login)?", true) {
		fmt.Fprintf(wiz.w, "\n  Skipping agent install.\n")
		fmt.Fprintf(wiz.w, "  You can run manually with: calnotes daemon\n\n")
		return nil
	}
	if err := wiz.Install(cfgPath); err != nil {
		return fmt.Errorf("installing agent: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Agent loaded, running now\n")
	fmt.Fprintf(wiz.w, "\nSetup complete! calnotes is syncing in the background.\n")
	fmt.Fprintf(wiz.w, "  Config:  %s\n", cfgPath)
	fmt.Fprintf(wiz.w, "  Status:  calnotes status\n\n")
	return nil
}
