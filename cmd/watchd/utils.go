package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/watchd/internal/config"
	"github.com/openmined/watchd/internal/cpclient"
	"github.com/openmined/watchd/internal/logging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// setupLogging installs the default logger. Only long running commands log
// to a file.
func setupLogging(cfg *config.Config, toFile bool) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	// stdout carries command output
	opts := logging.Options{Level: level, Console: os.Stderr}
	if toFile {
		opts.File = cfg.LogFile
	}

	logger, closer, err := logging.New(opts)
	if err != nil {
		return err
	}
	closeLogging()
	logCloser = closer
	slog.SetDefault(logger)
	return nil
}

func newClient(cfg *config.Config) *cpclient.Client {
	return cpclient.New(fmt.Sprintf("http://%s", cfg.HTTPAddr), cfg.HTTPToken)
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "running":
		return green
	case "starting", "created":
		return yellow
	default:
		return red
	}
}

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", formatText, "output format: text, json or yaml")
}

// writeStructured encodes v as json or yaml. yaml goes through json first so
// both formats share the json field names.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
