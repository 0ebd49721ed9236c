package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/watchd/internal/watchmgr"
)

type DebugHandler struct {
	mgr *watchmgr.Manager
}

func NewDebugHandler(mgr *watchmgr.Manager) *DebugHandler {
	return &DebugHandler{mgr: mgr}
}

// Recrawl rebuilds a root's view from disk
func (h *DebugHandler) Recrawl(c *gin.Context) {
	var req RecrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "debug-recrawl"
	}

	if err := h.mgr.Recrawl(req.Path, req.Reason); err != nil {
		abortWithManagerError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}

// PauseWatchers holds every notify thread before its next drain
func (h *DebugHandler) PauseWatchers(c *gin.Context) {
	h.mgr.Pause()
	c.PureJSON(http.StatusOK, &PauseResponse{Paused: true})
}

func (h *DebugHandler) UnpauseWatchers(c *gin.Context) {
	h.mgr.Unpause()
	c.PureJSON(http.StatusOK, &PauseResponse{Paused: false})
}
