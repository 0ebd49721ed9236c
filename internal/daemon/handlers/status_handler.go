package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/openmined/watchd/internal/version"
	"github.com/openmined/watchd/internal/watchmgr"
)

// StatusHandler handles status-related endpoints
type StatusHandler struct {
	mgr       *watchmgr.Manager
	startedAt time.Time
}

func NewStatusHandler(mgr *watchmgr.Manager) *StatusHandler {
	return &StatusHandler{
		mgr:       mgr,
		startedAt: time.Now(),
	}
}

// Status returns the status of the daemon
func (h *StatusHandler) Status(ctx *gin.Context) {
	// this is unlikely to happen, but just in case
	if h.mgr == nil {
		ctx.PureJSON(http.StatusServiceUnavailable, &ControlPlaneError{
			ErrorCode: ErrCodeUnknownError,
			Error:     "watch manager not initialized",
		})
		return
	}

	infos := h.mgr.List()
	var events uint64
	for _, info := range infos {
		events += info.Stats.Events
	}

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     version.Version,
		Revision:    version.Revision,
		BuildDate:   version.BuildDate,
		StartedAt:   h.startedAt.UTC().Format(time.RFC3339),
		Uptime:      strings.TrimSpace(humanize.RelTime(h.startedAt, time.Now(), "", "")),
		Paused:      h.mgr.Paused(),
		Roots:       len(infos),
		Events:      events,
		Subscribers: h.mgr.Subscribers(),
		Process:     selfStats(),
	})
}
