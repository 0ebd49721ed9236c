package cpclient

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/watchd/internal/config"
	"github.com/openmined/watchd/internal/daemon"
	"github.com/openmined/watchd/internal/daemon/handlers"
	"github.com/openmined/watchd/internal/daemon/middleware"
	"github.com/openmined/watchd/internal/pause"
	"github.com/openmined/watchd/internal/watchmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, token string) (*Client, *watchmgr.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Settle = 5 * time.Millisecond
	require.NoError(t, cfg.Validate())

	mgr := watchmgr.New(cfg, pause.NewController())
	srv := httptest.NewServer(daemon.SetupRoutes(mgr, &daemon.RouteConfig{
		Auth: middleware.TokenAuthConfig{Token: token},
	}))
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})
	return New(srv.URL, token), mgr
}

func TestClient_RoundTrip(t *testing.T) {
	c, mgr := newServer(t, "tok")
	ctx := t.Context()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.txt"), []byte("x"), 0o644))

	watched, err := c.Watch(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, watched.Root.Path)

	roots, err := c.ListRoots(ctx)
	require.NoError(t, err)
	require.Len(t, roots.Roots, 1)

	files, err := c.Files(ctx, dir, FilesQuery{Glob: "*.txt"})
	require.NoError(t, err)
	require.Len(t, files.Files, 1)
	assert.Equal(t, "x.txt", files.Files[0].Name)

	clock, err := c.Clock(ctx, dir, 5*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, clock.Clock)

	require.NoError(t, c.PauseWatchers(ctx))
	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Paused)
	require.NoError(t, c.UnpauseWatchers(ctx))
	assert.False(t, mgr.Paused())

	require.NoError(t, c.Recrawl(ctx, dir, "client test"))
	require.NoError(t, c.Unwatch(ctx, dir))
	assert.Empty(t, mgr.List())
}

func TestClient_APIErrors(t *testing.T) {
	c, _ := newServer(t, "tok")

	err := c.Unwatch(t.Context(), "/not/watched")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, handlers.ErrCodeRootNotWatched, apiErr.Code)
	assert.Equal(t, 404, apiErr.Status)
}

func TestClient_BadToken(t *testing.T) {
	c, _ := newServer(t, "tok")
	bad := New(c.BaseURL(), "wrong")

	_, err := bad.Status(t.Context())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 401, apiErr.Status)
}

func TestClient_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "")
	_, err := c.Status(t.Context())
	assert.ErrorIs(t, err, ErrDaemonUnreachable)
}
