package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/output"
	"github.com/Aman-CERP/amandocs/internal/service"
)

func newWatchCmd() *cobra.Command {
	var (
		collection string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the files and directories kept in sync",
		Long: `The change monitor re-ingests watched files when they are added or modified.
Watch-lists are keyed by collection and port.`,
	}
	cmd.PersistentFlags().StringVarP(&collection, "collection", "c", "", "Collection the watched files are indexed into")
	cmd.PersistentFlags().IntVar(&port, "port", 0, "Watch-list port (default from config)")

	req := func(path, name string) service.WatchRequest {
		return service.WatchRequest{Collection: collection, Port: port, Name: name, Path: path}
	}

	var name string
	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Watch a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			entry, err := client.AddWatch(cmd.Context(), req(abs, name))
			if err != nil {
				return err
			}
			out := newWriter(cmd)
			out.Successf("Watching %s", entry.Path)
			if out.JSONMode() {
				return out.JSON(entry)
			}
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Display name (default: base name of the path)")

	remove := &cobra.Command{
		Use:   "remove <path>",
		Short: "Stop watching a path; indexed content stays indexed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			removed, err := client.RemoveWatch(cmd.Context(), req(abs, ""))
			if err != nil {
				return err
			}
			out := newWriter(cmd)
			if out.JSONMode() {
				return out.JSON(map[string]bool{"removed": removed})
			}
			if !removed {
				out.Warningf("%s was not watched", abs)
				return nil
			}
			out.Successf("Stopped watching %s", abs)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every watch-list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			docs, err := client.ListWatch(cmd.Context())
			if err != nil {
				return err
			}
			return newWriter(cmd).Result(docs, func(t *output.Table) {
				watchTable(t, docs)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the watch-list of a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			if err := client.ClearWatch(cmd.Context(), req("", "")); err != nil {
				return err
			}
			out := newWriter(cmd)
			out.Success("Watch-list cleared")
			if out.JSONMode() {
				return out.JSON(map[string]bool{"ok": true})
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, list, clearCmd)
	return cmd
}

func watchTable(t *output.Table, docs []monitor.WatchDocument) {
	t.Header("COLLECTION", "PORT", "PATH", "REGISTERED")
	t.Empty("Nothing is watched.")
	for _, d := range docs {
		for _, e := range d.Files {
			registered := "pending"
			if !e.RegisteredAt.IsZero() {
				registered = e.RegisteredAt.Local().Format(time.DateTime)
			}
			t.Row(d.Collection, d.Port, e.Path, registered)
		}
	}
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Control the change monitor",
	}

	pause := &cobra.Command{
		Use:   "pause",
		Short: "Suspend monitor ticks until resumed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			if err := client.PauseMonitor(cmd.Context()); err != nil {
				return err
			}
			newWriter(cmd).Success("Monitor paused")
			return nil
		},
	}

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Resume monitor ticks; a deferred tick runs immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			if err := client.ResumeMonitor(cmd.Context()); err != nil {
				return err
			}
			newWriter(cmd).Success("Monitor resumed")
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Show recent tick summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			sums, err := client.MonitorSummaries(cmd.Context())
			if err != nil {
				return err
			}
			return newWriter(cmd).Result(sums, func(t *output.Table) {
				t.Header("STARTED", "DURATION", "ADDED", "MODIFIED", "DELETED", "FAILED", "NOTE")
				t.Empty("No ticks yet.")
				for _, s := range sums {
					note := s.Error
					if s.Skipped {
						note = "skipped"
					}
					t.Row(s.Started.Local().Format(time.TimeOnly), s.Duration.Round(time.Millisecond),
						s.Added, s.Modified, s.Deleted, s.Failed, note)
				}
			})
		},
	}

	cmd.AddCommand(pause, resume, history, newMonitorRunCmd())
	return cmd
}

func newMonitorRunCmd() *cobra.Command {
	var (
		dbPath     string
		interval   time.Duration
		collection string
		watches    []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a standalone monitor that uploads changes to the daemon",
		Long: `Run a change monitor in this process with its own watch database.
Changed files are queued on the running daemon instead of being ingested
locally, so the daemon's queue and capacity limits apply.

Example:
  amandocs monitor run --db ~/inbox.db --watch ~/Inbox --collection inbox`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dbPath == "" || dbPath == cfg.MonitorDBPath() {
				return fmt.Errorf("--db is required and must differ from the daemon's %s", cfg.MonitorDBPath())
			}
			client, err := connect()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.Monitor.PollInterval
			}
			if collection == "" {
				collection = cfg.Store.DefaultCollection
			}

			store, err := monitor.OpenWatchStore(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			m, err := monitor.New(monitor.Options{
				Store:            store,
				Uploader:         client,
				Interval:         interval,
				MaxRetries:       cfg.Monitor.MaxRetries,
				RetryDelay:       cfg.Monitor.RetryDelay,
				UploadsPerSecond: cfg.Monitor.UploadsPerSecond,
				Exclude:          cfg.Monitor.Exclude,
				Notify:           true,
			})
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			for _, w := range watches {
				abs, err := filepath.Abs(w)
				if err != nil {
					return err
				}
				if _, err := m.AddWatch(cmd.Context(), collection, cfg.Monitor.Port, cfg.Monitor.IP, "", abs); err != nil {
					return err
				}
				out.Statusf("", "Watching %s", abs)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runStandaloneMonitor(ctx, out, m)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Watch database for this monitor")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default from config)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection for --watch paths (default from config)")
	cmd.Flags().StringSliceVar(&watches, "watch", nil, "Paths to add to this monitor's watch-list")
	return cmd
}

func runStandaloneMonitor(ctx context.Context, out *output.Writer, m *monitor.Monitor) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	out.Success("Monitor running; press Ctrl+C to stop")
	<-ctx.Done()
	m.Stop()
	slog.Info("standalone monitor stopped")
	return nil
}
