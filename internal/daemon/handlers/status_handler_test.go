package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/watchd/internal/config"
	"github.com/openmined/watchd/internal/pause"
	"github.com/openmined/watchd/internal/watchmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusHandler_Status(t *testing.T) {
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	mgr := watchmgr.New(cfg, pause.NewController())
	t.Cleanup(mgr.Close)

	handler := NewStatusHandler(mgr)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/status", nil)

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.NotEmpty(t, resp.StartedAt)
	assert.NotEmpty(t, resp.Uptime)
	assert.False(t, resp.Paused)
	assert.Zero(t, resp.Roots)
	require.NotNil(t, resp.Process)
	assert.Equal(t, int32(os.Getpid()), resp.Process.PID)
}

func TestStatusHandler_NoManager(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/status", nil)

	NewStatusHandler(nil).Status(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFormatClock(t *testing.T) {
	started := time.Unix(1700000000, 0)
	assert.Equal(t, "c:1700000000:42", FormatClock(started, 42))
}
