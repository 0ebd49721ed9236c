package main

import (
	"fmt"

	"github.com/openmined/watchd/internal/cpclient"
	"github.com/spf13/cobra"
)

func newFilesCmd() *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files <path>",
		Short: "Query the files a daemon knows about under a root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			glob, _ := cmd.Flags().GetString("glob")
			since, _ := cmd.Flags().GetUint64("since")
			format, _ := cmd.Flags().GetString("output")

			res, err := newClient(cfg).Files(cmd.Context(), args[0], cpclient.FilesQuery{Glob: glob, Since: since})
			if err != nil {
				return err
			}

			if format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, res)
			}
			for _, f := range res.Files {
				fmt.Fprintln(cmd.OutOrStdout(), formatChange(res.Root, f.Tick, f))
			}
			fmt.Fprintln(cmd.OutOrStdout(), gray.Render(fmt.Sprintf("%d files at tick %d", len(res.Files), res.Tick)))
			return nil
		},
	}

	filesCmd.Flags().StringP("glob", "g", "", "only files matching this glob")
	filesCmd.Flags().Uint64("since", 0, "only files changed after this tick, deletions included")
	addOutputFlag(filesCmd)
	return filesCmd
}

func newClockCmd() *cobra.Command {
	clockCmd := &cobra.Command{
		Use:   "clock <path>",
		Short: "Sync a root to now and print its clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			timeout, _ := cmd.Flags().GetDuration("timeout")
			res, err := newClient(cfg).Clock(cmd.Context(), args[0], timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Clock)
			return nil
		},
	}

	clockCmd.Flags().Duration("timeout", 0, "sync timeout (default: the daemon's sync_timeout)")
	return clockCmd
}

func newDebugCmd() *cobra.Command {
	debugCmd := &cobra.Command{
		Use:    "debug",
		Short:  "Debug controls for a running daemon",
		Hidden: true,
	}

	debugCmd.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Hold every notify thread before its next drain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			if err := newClient(cfg).PauseWatchers(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), yellow.Render("notify threads paused"))
			return nil
		},
	})

	debugCmd.AddCommand(&cobra.Command{
		Use:   "unpause",
		Short: "Release paused notify threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			if err := newClient(cfg).UnpauseWatchers(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("notify threads unpaused"))
			return nil
		},
	})

	recrawlCmd := &cobra.Command{
		Use:   "recrawl <path>",
		Short: "Force a full recrawl of a root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			reason, _ := cmd.Flags().GetString("reason")
			if err := newClient(cfg).Recrawl(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cyan.Render("recrawl scheduled"), args[0])
			return nil
		},
	}
	recrawlCmd.Flags().String("reason", "", "reason recorded in the root's warning")
	debugCmd.AddCommand(recrawlCmd)

	return debugCmd
}
