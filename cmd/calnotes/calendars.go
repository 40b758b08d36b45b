package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njoerd114/calnotes/internal/config"
	"github.com/njoerd114/calnotes/internal/model"
	"github.com/njoerd114/calnotes/internal/setup"
	"github.com/njoerd114/calnotes/internal/store"
)

func newCalendarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List, enable or disable synced calendars",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List known calendars",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, st, err := openStoreOnly()
				if err != nil {
					return err
				}
				defer st.Close()

				cals, err := st.ListCalendars(cmd.Context())
				if err != nil {
					return err
				}
				printCalendars(cmd.OutOrStdout(), cals, cfg.UserID)
				return nil
			},
		},
		newToggleCmd("enable", true),
		newToggleCmd("disable", false),
	)
	return cmd
}

// newToggleCmd builds enable/disable. Toggling runs a sync so events appear
// or disappear right away.
func newToggleCmd(use string, enabled bool) *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   use + " <calendar-id-or-name>",
		Short: fmt.Sprintf("%s a calendar and sync", capitalize(use)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			_, st, err := openStoreOnly()
			if err != nil {
				return err
			}
			cal, err := findCalendar(ctx, st, args[0])
			if err != nil {
				st.Close()
				return err
			}
			err = st.SetCalendarEnabled(ctx, cal.ID, enabled)
			st.Close()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("✓ %s %sd", cal.Name, use)))

			if noSync {
				return nil
			}
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
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "only change the flag, do not sync")
	return cmd
}

// openStoreOnly loads the config and opens the database without connecting a
// calendar provider.
func openStoreOnly() (*config.Config, *store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database at %q: %w", cfg.DBPath, err)
	}
	return cfg, st, nil
}

// findCalendar resolves a calendar by local id, tracking id or exact name.
func findCalendar(ctx context.Context, st *store.Store, ref string) (*model.Calendar, error) {
	cals, err := st.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	var byName []*model.Calendar
	for _, c := range cals {
		if c.ID == ref || c.TrackingID == ref {
			return c, nil
		}
		if c.Name == ref {
			byName = append(byName, c)
		}
	}
	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
		return nil, fmt.Errorf("no calendar matches %q (see 'calnotes calendars list')", ref)
	default:
		return nil, fmt.Errorf("%d calendars are named %q, use the id instead", len(byName), ref)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent, config and calendar state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			home, _ := os.UserHomeDir()
			agent := setup.NewAgent(home, cfgPath)

			fmt.Fprintln(out, headerStyle.Render("calnotes status"))

			if agent.IsLoaded() {
				fmt.Fprintf(out, "  Agent:     %s\n", okStyle.Render("running (launchd)"))
			} else {
				fmt.Fprintf(out, "  Agent:     %s\n", mutedStyle.Render("not loaded"))
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(out, "  Config:    %s\n", warnStyle.Render(fmt.Sprintf("%s (%v)", cfgPath, err)))
				return nil
			}
			fmt.Fprintf(out, "  Config:    %s ✓\n", cfgPath)
			fmt.Fprintf(out, "  Provider:  %s\n", cfg.Provider)
			if cfg.Schedule != "" {
				fmt.Fprintf(out, "  Schedule:  %s\n", cfg.Schedule)
			} else {
				fmt.Fprintf(out, "  Interval:  %s\n", cfg.SyncInterval)
			}
			fmt.Fprintf(out, "  Window:    -%dd / +%dd (%s)\n", cfg.Window.PastDays, cfg.Window.FutureDays, cfg.Location())

			info, err := os.Stat(cfg.DBPath)
			if err != nil {
				fmt.Fprintf(out, "  Database:  %s\n", mutedStyle.Render("not found"))
				return nil
			}
			fmt.Fprintf(out, "  Database:  %s (%s)\n", cfg.DBPath, humanSize(info.Size()))
			fmt.Fprintf(out, "  Logs:      %s\n", agent.LogDir())

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			cals, err := st.ListCalendars(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printCalendars(out, cals, cfg.UserID)
			return nil
		},
	}
}

func printCalendars(w io.Writer, cals []*model.Calendar, userID string) {
	if len(cals) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No calendars registered. Run 'calnotes setup' or 'calnotes sync-once'."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("STATE")+"\t"+headerStyle.Render("NAME")+"\t"+headerStyle.Render("PROVIDER")+"\t"+headerStyle.Render("ID"))
	for _, c := range cals {
		if c.UserID != userID {
			continue
		}
		state := mutedStyle.Render("off")
		if c.Enabled {
			state = okStyle.Render("on")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", state, c.Name, c.Provider, idStyle.Render(c.ID))
	}
	_ = tw.Flush()
}
