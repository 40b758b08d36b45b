package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/njoerd114/calnotes/internal/config"
	"github.com/njoerd114/calnotes/internal/eventkit"
	"github.com/njoerd114/calnotes/internal/ics"
	"github.com/njoerd114/calnotes/internal/setup"
	"github.com/njoerd114/calnotes/internal/store"
	syncp "github.com/njoerd114/calnotes/internal/sync"
	"github.com/njoerd114/calnotes/internal/telemetry"
)

// app holds the wired components shared by daemon, sync-once and the
// calendar commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *syncp.Engine

	shutdownTel telemetry.ShutdownFunc
}

// newApp loads config, starts telemetry, opens the store, connects the
// calendar provider and refreshes the calendar list.
func newApp(ctx context.Context, path string, verbose bool) (*app, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", path, err)
	}
	logger.Info("config loaded",
		"provider", cfg.Provider,
		"sync_interval", cfg.SyncInterval,
		"schedule", cfg.Schedule,
		"timezone", cfg.Location().String(),
	)

	a := &app{cfg: cfg, logger: logger, shutdownTel: func(context.Context) error { return nil }}

	// --- Telemetry (optional) ------------------------------------------------

	if telCfg, ok := telemetry.FromConfig(cfg.Telemetry, version); ok {
		shutdown, err := telemetry.Setup(ctx, telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", telCfg.OTLPEndpoint)
			a.shutdownTel = shutdown
			// Re-create the logger so records also reach the OTel log provider.
			a.logger = slog.New(telemetry.NewLogHandler(logger.Handler(), "calnotes"))
			slog.SetDefault(a.logger)
			logger = a.logger
		}
	}

	// --- Store ---------------------------------------------------------------

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening database at %q: %w", cfg.DBPath, err)
	}
	a.store = st
	logger.Info("database opened", "path", cfg.DBPath)

	// --- Provider ------------------------------------------------------------

	provider, found, err := a.connectProvider(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := setup.Register(ctx, st, cfg.UserID, found, nil); err != nil {
		a.Close()
		return nil, fmt.Errorf("refreshing calendars: %w", err)
	}

	// --- Sync engine ---------------------------------------------------------

	opts := syncp.Options{
		UserID:     cfg.UserID,
		PastDays:   cfg.Window.PastDays,
		FutureDays: cfg.Window.FutureDays,
		Location:   cfg.Location(),
	}
	if cfg.Reschedule.Enabled {
		opts.Matcher = syncp.TitleWindowMatcher{Window: cfg.Reschedule.MaxShift}
	}
	syncer := syncp.NewSyncer(provider, st, opts, logger)

	schedule, err := syncp.ParseSchedule(cfg.SyncInterval, cfg.Schedule)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = syncp.NewEngine(syncer, schedule, cfg.TriggerDebounce, logger)
	return a, nil
}

// connectProvider builds the configured calendar provider and lists its
// calendars.
func (a *app) connectProvider(ctx context.Context) (syncp.Provider, []setup.DiscoveredCalendar, error) {
	cfg := a.cfg
	if cfg.Provider == config.ProviderICS {
		feeds := make([]ics.Feed, len(cfg.ICSFeeds))
		for i, f := range cfg.ICSFeeds {
			feeds[i] = ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL}
		}
		p := ics.NewProvider(ics.NewFetcher(nil, a.logger), feeds, cfg.SelfEmails, a.logger)
		return p, setup.DiscoverFeeds(cfg.ICSFeeds), nil
	}

	a.logger.Info("initialising calendar client (may trigger permissions prompt)…")
	adapter, err := eventkit.NewAdapter(cfg.SelfEmails, a.logger)
	if err != nil && strings.Contains(err.Error(), "access denied") {
		// macOS has denied Calendar access (TCC). Open System Settings to the
		// privacy page so the user can flip the switch, then retry once.
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, warnStyle.Render("⚠️  Calendar access is denied."))
		fmt.Fprintln(os.Stderr, "   Opening System Settings → Privacy & Security → Calendars…")
		_ = exec.Command("open", "x-apple.systempreferences:com.apple.preference.security?Privacy_Calendars").Start()
		fmt.Fprint(os.Stderr, "   Press Enter after granting access to retry: ")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		adapter, err = eventkit.NewAdapter(cfg.SelfEmails, a.logger)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("initialising calendar client: %w", err)
	}

	found, err := setup.DiscoverEventKit(ctx, adapter, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return adapter, found, nil
}

// runDaemon runs the engine until ctx is cancelled. SIGUSR1 triggers a sync
// and SIGUSR2 logs the engine status.
func (a *app) runDaemon(ctx context.Context) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == syscall.SIGUSR1 {
					a.logger.Info("sync requested by signal")
					a.engine.Trigger()
					continue
				}
				st := a.engine.Status()
				a.logger.Info("engine status",
					"task", st.Task,
					"running", st.Running,
					"last_run", st.LastRun,
					"last_error", st.LastErr,
					"next_run_in", a.engine.TimeUntilNextRun().Round(time.Second),
				)
			}
		}
	}()

	a.logger.Info("daemon starting", "sync_interval", a.cfg.SyncInterval, "schedule", a.cfg.Schedule)
	if err := a.engine.Run(ctx); err != nil && !isCanceled(err) {
		return fmt.Errorf("sync engine: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("closing database", "error", err)
		}
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTel(flushCtx); err != nil {
		a.logger.Error("telemetry shutdown error", "error", err)
	}
}
