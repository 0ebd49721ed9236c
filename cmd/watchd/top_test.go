package main

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/watchd/internal/daemon/handlers"
	"github.com/openmined/watchd/internal/ingest"
	"github.com/openmined/watchd/internal/watchmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	paused bool
	err    error
}

func (f *fakeSource) Status(context.Context) (*handlers.StatusResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &handlers.StatusResponse{Status: "ok", Version: "0.1.0", Uptime: "5 minutes", Roots: 1, Events: 42, Paused: f.paused}, nil
}

func (f *fakeSource) ListRoots(context.Context) (*handlers.RootsResponse, error) {
	return &handlers.RootsResponse{Roots: []watchmgr.Info{{
		Path:  "/srv/data",
		State: "running",
		Files: 3,
		Stats: ingest.Stats{Events: 42, Handoffs: 7},
	}}}, nil
}

func (f *fakeSource) PauseWatchers(context.Context) error {
	f.paused = true
	return nil
}

func (f *fakeSource) UnpauseWatchers(context.Context) error {
	f.paused = false
	return nil
}

func TestTopModel_RendersSnapshot(t *testing.T) {
	src := &fakeSource{}
	m := newTopModel(t.Context(), src, time.Second)
	assert.Contains(t, m.View(), "connecting")

	msg := m.fetch()()
	next, cmd := m.Update(msg)
	require.NotNil(t, cmd, "a snapshot schedules the next poll")
	m = next.(topModel)

	view := stripANSI(m.View())
	assert.Contains(t, view, "/srv/data")
	assert.Contains(t, view, "files=3")
	assert.Contains(t, view, "events=42")
	assert.NotContains(t, view, "PAUSED")
}

func TestTopModel_TogglesPause(t *testing.T) {
	src := &fakeSource{}
	m := newTopModel(t.Context(), src, time.Second)
	next, _ := m.Update(m.fetch()())
	m = next.(topModel)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m = next.(topModel)
	require.NotNil(t, cmd)

	next, _ = m.Update(cmd())
	m = next.(topModel)
	assert.True(t, src.paused)
	assert.Contains(t, stripANSI(m.View()), "PAUSED")
}

func TestTopModel_ShowsErrorsAndQuits(t *testing.T) {
	src := &fakeSource{err: errors.New("daemon unreachable")}
	m := newTopModel(t.Context(), src, time.Second)

	next, _ := m.Update(m.fetch()())
	m = next.(topModel)
	assert.Contains(t, stripANSI(m.View()), "daemon unreachable")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
