package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/openmined/watchd/internal/config"
	"github.com/openmined/watchd/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var home, _ = os.UserHomeDir()

// flag name -> config key, for flags that exist on the command being run
var flagKeys = map[string]string{
	"state-dir":     config.KeyStateDir,
	"log-file":      config.KeyLogFile,
	"log-level":     config.KeyLogLevel,
	"backend":       config.KeyBackend,
	"batch-limit":   config.KeyBatchLimit,
	"wait-timeout":  config.KeyWaitTimeout,
	"settle":        config.KeySettle,
	"max-settle":    config.KeyMaxSettle,
	"flush-on-stop": config.KeyFlushOnStop,
	"sync-timeout":  config.KeySyncTimeout,
	"ignore":        config.KeyIgnore,
	"http-addr":     config.KeyHTTPAddr,
	"http-token":    config.KeyHTTPToken,
	"root":          config.KeyRoots,
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "watchd",
		Short:         "Filesystem watch daemon",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "watchd config file")
	rootCmd.PersistentFlags().String("state-dir", config.DefaultStateDir, "directory for logs and the daemon lock")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringP("http-addr", "a", config.DefaultHTTPAddr, "control plane address")
	rootCmd.PersistentFlags().StringP("http-token", "t", "", "control plane access token")

	rootCmd.AddCommand(
		newDaemonCmd(),
		newRunCmd(),
		newRootsCmd(),
		newFilesCmd(),
		newClockCmd(),
		newSubscribeCmd(),
		newDebugCmd(),
		newTopCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	closeLogging()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, red.Render("error:"), err)
		os.Exit(1)
	}
}

// loadConfig layers flags over WATCHD_* env over the config file over
// defaults, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else if envPath := os.Getenv("WATCHD_CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.AddConfigPath(config.DefaultStateDir)
		v.AddConfigPath(filepath.Join(home, ".config", "watchd"))
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.BindPFlag(key, f)
		}
	})

	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	cfg := config.FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var logCloser io.Closer

func closeLogging() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}
