package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/openmined/watchd/internal/view"
	"github.com/openmined/watchd/internal/watchmgr"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <path>...",
		Short: "Watch roots in the foreground and print every settled change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := setupLogging(cfg, false); err != nil {
				return err
			}

			mgr := watchmgr.New(cfg, nil, watchmgr.WithSettleFunc(printSettled(cmd.OutOrStdout())))
			defer mgr.Close()

			for _, path := range args {
				w, err := mgr.Watch(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("watch %s: %w", path, err)
				}
				info := w.Info()
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
					green.Render("watching"), info.Path,
					gray.Render(fmt.Sprintf("(%s files)", humanize.Comma(int64(info.Files)))))
			}

			<-cmd.Context().Done()
			slog.Info("stopping")
			return nil
		},
	}

	addWatchFlags(runCmd)
	return runCmd
}

// printSettled writes one line per changed file of each settled batch.
func printSettled(out io.Writer) watchmgr.SettleFunc {
	var mu sync.Mutex
	return func(root string, tick uint64, changed []view.FileState) {
		mu.Lock()
		defer mu.Unlock()
		for _, f := range changed {
			fmt.Fprintln(out, formatChange(root, tick, f))
		}
	}
}

func formatChange(root string, tick uint64, f view.FileState) string {
	tickStr := gray.Render(fmt.Sprintf("#%d", tick))
	switch {
	case !f.Exists:
		return fmt.Sprintf("%s %s %s/%s", tickStr, red.Render("deleted"), root, f.Name)
	case f.Dir:
		return fmt.Sprintf("%s %s %s/%s/", tickStr, cyan.Render("dir    "), root, f.Name)
	default:
		return fmt.Sprintf("%s %s %s/%s %s", tickStr, green.Render("changed"), root, f.Name,
			gray.Render(humanize.IBytes(uint64(f.Size))))
	}
}
