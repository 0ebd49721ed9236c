package main

import (
	"fmt"

	"github.com/openmined/watchd/internal/daemon/handlers"
	"github.com/spf13/cobra"
)

func newSubscribeCmd() *cobra.Command {
	subscribeCmd := &cobra.Command{
		Use:   "subscribe <path>",
		Short: "Stream settled changes of a root from a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			format, _ := cmd.Flags().GetString("output")
			out := cmd.OutOrStdout()
			var dropped uint64

			err = newClient(cfg).Subscribe(cmd.Context(), args[0], func(ev *handlers.SubscribeEvent) error {
				if format != formatText {
					return writeStructured(out, format, ev)
				}
				if ev.Dropped > dropped {
					fmt.Fprintln(out, yellow.Render(fmt.Sprintf("fell behind, %d batches dropped", ev.Dropped-dropped)))
					dropped = ev.Dropped
				}
				for _, f := range ev.Files {
					fmt.Fprintln(out, formatChange(ev.Root, ev.Tick, f))
				}
				return nil
			})
			if err != nil && cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}

	addOutputFlag(subscribeCmd)
	return subscribeCmd
}
