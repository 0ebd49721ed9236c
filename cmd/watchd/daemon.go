package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/watchd/internal/daemon"
	"github.com/openmined/watchd/internal/version"
	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the watchd daemon and its control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := setupLogging(cfg, true); err != nil {
				return err
			}
			slog.Info("watchd", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)
			slog.Info("daemon using config", "path", cfg.Path, "log_file", cfg.LogFile)

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := d.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon start", "error", err)
				return err
			}
			return nil
		},
	}

	addWatchFlags(daemonCmd)
	daemonCmd.Flags().String("log-file", "", "log file (default <state-dir>/logs/watchd.log)")
	daemonCmd.Flags().StringSlice("root", nil, "root to watch on start, repeatable")

	return daemonCmd
}

// addWatchFlags registers the flags that tune how roots are watched.
func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", "notify", "notification backend: notify or fsnotify")
	cmd.Flags().Int("batch-limit", 1024, "max events handed off per batch")
	cmd.Flags().Duration("wait-timeout", 24*time.Hour, "max time a notify thread blocks between wakeups")
	cmd.Flags().Duration("settle", 20*time.Millisecond, "quiet period before a root counts as settled")
	cmd.Flags().Duration("max-settle", time.Minute, "upper bound for the idle settle backoff")
	cmd.Flags().Bool("flush-on-stop", false, "hand off a partially filled batch when stopping")
	cmd.Flags().Duration("sync-timeout", time.Minute, "default timeout for clock sync")
	cmd.Flags().StringSlice("ignore", nil, "glob to ignore, relative to each root, repeatable")
}
