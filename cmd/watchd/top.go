package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/watchd/internal/daemon/handlers"
	"github.com/openmined/watchd/internal/watchmgr"
	"github.com/spf13/cobra"
)

const txtTopHelp = "'p' pause/unpause notify threads. 'q' to quit."

var (
	titleStyle = cyan.Bold(true)
	helpStyle  = gray
)

// topSource is the slice of the control plane client the top view polls.
type topSource interface {
	Status(ctx context.Context) (*handlers.StatusResponse, error)
	ListRoots(ctx context.Context) (*handlers.RootsResponse, error)
	PauseWatchers(ctx context.Context) error
	UnpauseWatchers(ctx context.Context) error
}

func newTopCmd() *cobra.Command {
	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Live view of a running daemon's roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				return fmt.Errorf("interval must be positive")
			}

			ctx := cmd.Context()
			model := newTopModel(ctx, newClient(cfg), interval)
			_, err = tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen()).Run()
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	topCmd.Flags().Duration("interval", time.Second, "poll interval")
	return topCmd
}

type topModel struct {
	ctx      context.Context
	src      topSource
	interval time.Duration
	spinner  spinner.Model

	loaded bool
	status *handlers.StatusResponse
	roots  []watchmgr.Info
	err    error
	width  int
}

type snapshotMsg struct {
	status *handlers.StatusResponse
	roots  []watchmgr.Info
	err    error
}

type pollMsg time.Time

type pauseToggledMsg struct {
	paused bool
	err    error
}

func newTopModel(ctx context.Context, src topSource, interval time.Duration) topModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return topModel{
		ctx:      ctx,
		src:      src,
		interval: interval,
		spinner:  s,
	}
}

func (m topModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "p":
			if m.status == nil {
				return m, nil
			}
			return m, m.togglePause(!m.status.Paused)
		}

	case snapshotMsg:
		m.loaded = true
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.roots = msg.roots
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return pollMsg(t) })

	case pollMsg:
		return m, m.fetch()

	case pauseToggledMsg:
		m.err = msg.err
		if msg.err == nil && m.status != nil {
			m.status.Paused = msg.paused
		}

	case spinner.TickMsg:
		if m.loaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
	}

	return m, nil
}

func (m topModel) fetch() tea.Cmd {
	return func() tea.Msg {
		status, err := m.src.Status(m.ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		roots, err := m.src.ListRoots(m.ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{status: status, roots: roots.Roots}
	}
}

func (m topModel) togglePause(pause bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if pause {
			err = m.src.PauseWatchers(m.ctx)
		} else {
			err = m.src.UnpauseWatchers(m.ctx)
		}
		return pauseToggledMsg{paused: pause, err: err}
	}
}

func (m topModel) View() string {
	var b strings.Builder

	if !m.loaded {
		fmt.Fprintf(&b, "%s connecting to daemon...\n", m.spinner.View())
		return b.String()
	}

	b.WriteString(titleStyle.Render("watchd"))
	if m.status != nil {
		fmt.Fprintf(&b, " %s", gray.Render(fmt.Sprintf("v%s up %s, %d roots, %d events",
			m.status.Version, m.status.Uptime, m.status.Roots, m.status.Events)))
		if p := m.status.Process; p != nil {
			fmt.Fprintf(&b, " %s", gray.Render(fmt.Sprintf("rss %s, %d fds", humanize.IBytes(p.RSS), p.NumFDs)))
		}
		if m.status.Paused {
			b.WriteString(" " + yellow.Render("PAUSED"))
		}
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(red.Render("error: "+m.err.Error()) + "\n\n")
	}

	if len(m.roots) == 0 {
		b.WriteString(gray.Render("no roots watched") + "\n")
	}
	for _, r := range m.roots {
		line := formatRoot(r)
		if m.width > 0 {
			line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + helpStyle.Render(txtTopHelp) + "\n")
	return b.String()
}
