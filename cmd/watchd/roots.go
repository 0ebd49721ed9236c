package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/watchd/internal/watchmgr"
	"github.com/spf13/cobra"
)

func newRootsCmd() *cobra.Command {
	rootsCmd := &cobra.Command{
		Use:   "roots",
		Short: "Manage the roots watched by a running daemon",
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List watched roots",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			roots, err := newClient(cfg).ListRoots(cmd.Context())
			if err != nil {
				return err
			}
			if format, _ := cmd.Flags().GetString("output"); format != formatText {
				return writeStructured(cmd.OutOrStdout(), format, roots.Roots)
			}
			printRoots(cmd.OutOrStdout(), roots.Roots)
			return nil
		},
	}
	addOutputFlag(listCmd)
	rootsCmd.AddCommand(listCmd)

	rootsCmd.AddCommand(&cobra.Command{
		Use:   "add <path>...",
		Short: "Start watching roots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			client := newClient(cfg)
			for _, path := range args {
				res, err := client.Watch(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green.Render("watching"), res.Root.Path)
			}
			return nil
		},
	})

	rootsCmd.AddCommand(&cobra.Command{
		Use:     "remove <path>...",
		Aliases: []string{"rm"},
		Short:   "Stop watching roots",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			client := newClient(cfg)
			for _, path := range args {
				if err := client.Unwatch(cmd.Context(), path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), yellow.Render("unwatched"), path)
			}
			return nil
		},
	})

	return rootsCmd
}

func printRoots(out io.Writer, roots []watchmgr.Info) {
	if len(roots) == 0 {
		fmt.Fprintln(out, gray.Render("no roots watched"))
		return
	}
	for _, r := range roots {
		fmt.Fprintln(out, formatRoot(r))
		if r.FailureReason != "" {
			fmt.Fprintln(out, "  "+red.Render(r.FailureReason))
		}
		if r.Warning != "" {
			fmt.Fprintln(out, "  "+yellow.Render(r.Warning))
		}
	}
}

func formatRoot(r watchmgr.Info) string {
	parts := []string{
		stateStyle(r.State).Render(fmt.Sprintf("%-10s", r.State)),
		r.Path,
		gray.Render(fmt.Sprintf("files=%s events=%s handoffs=%s tick=%d",
			humanize.Comma(int64(r.Files)),
			humanize.Comma(int64(r.Stats.Events)),
			humanize.Comma(int64(r.Stats.Handoffs)),
			r.Tick)),
	}
	if r.Stats.DroppedOnStop > 0 {
		parts = append(parts, red.Render(fmt.Sprintf("dropped=%d", r.Stats.DroppedOnStop)))
	}
	return strings.Join(parts, " ")
}
