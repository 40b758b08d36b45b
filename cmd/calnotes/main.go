// calnotes keeps the local meeting-notes database in step with your
// calendars: events are mirrored into the store, notes follow their meeting
// when it moves, and attendees are linked to the people directory.
//
// Usage:
//
//	calnotes setup                          # interactive first-run wizard
//	calnotes daemon [--config <path>]       # scheduled sync until interrupted
//	calnotes sync-once [--config <path>]    # single sync pass then exit
//	calnotes status                         # show agent, config and calendars
//	calnotes calendars list|enable|disable  # manage synced calendars
//	calnotes uninstall [--purge]            # stop agent and remove files
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/njoerd114/calnotes/internal/config"
	"github.com/njoerd114/calnotes/internal/setup"
	"github.com/njoerd114/calnotes/internal/store"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgPath string
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaultCfg, _ := config.DefaultPath()

	root := &cobra.Command{
		Use:           "calnotes",
		Short:         "Sync calendar events into your meeting notes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "path to config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.SetVersionTemplate(`{{printf "calnotes %s\n" .Version}}`)

	root.AddCommand(
		newSetupCmd(),
		newDaemonCmd(),
		newSyncOnceCmd(),
		newStatusCmd(),
		newCalendarsCmd(),
		newUninstallCmd(),
	)
	return root
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run wizard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(slog.LevelWarn)
			ctx, stop := signalContext()
			defer stop()

			wiz := setup.NewWizard(os.Stdin, os.Stdout, logger)
			wiz.ConfigPath = cfgPath
			wiz.OpenStore = func(path string) (setup.CalendarStore, io.Closer, error) {
				st, err := store.Open(path)
				if err != nil {
					return nil, nil, err
				}
				return st, st, nil
			}
			wiz.Install = func(configPath string) error {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolving home directory: %w", err)
				}
				return setup.NewAgent(home, configPath).Install()
			}
			return wiz.Run(ctx)
		},
	}
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled syncs until interrupted",
		Long: `Run scheduled syncs until interrupted.

Send SIGUSR1 to request an immediate sync and SIGUSR2 to log the engine status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfgPath, verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.runDaemon(ctx)
		},
	}
}

func newSyncOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-once",
		Short: "Run a single sync pass then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfgPath, verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.engine.RunOnce(ctx)
			printStats(cmd.OutOrStdout(), stats)
			return err
		},
	}
}

func newUninstallCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the background agent and remove installed files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Uninstalling calnotes...")
			if err := setup.NewAgent(home, cfgPath).Uninstall(purge); err != nil {
				return err
			}
			if !purge {
				fmt.Fprintln(out, mutedStyle.Render("  Config and database preserved. Run with --purge to remove them."))
			}
			fmt.Fprintln(out, okStyle.Render("✓ calnotes uninstalled."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove config, database and logs")
	return cmd
}

// isCanceled reports whether err only reflects shutdown.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
