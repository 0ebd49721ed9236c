package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/watchd/internal/view"
	"github.com/openmined/watchd/internal/watchmgr"
)

type RootsHandler struct {
	mgr *watchmgr.Manager
}

func NewRootsHandler(mgr *watchmgr.Manager) *RootsHandler {
	return &RootsHandler{mgr: mgr}
}

// List returns every registered root
func (h *RootsHandler) List(c *gin.Context) {
	c.PureJSON(http.StatusOK, &RootsResponse{Roots: h.mgr.List()})
}

// Watch starts watching a root and returns once its initial crawl is done
func (h *RootsHandler) Watch(c *gin.Context) {
	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	w, err := h.mgr.Watch(c.Request.Context(), req.Path)
	if err != nil {
		abortWithManagerError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, &WatchResponse{Root: w.Info()})
}

// Unwatch stops watching a root
func (h *RootsHandler) Unwatch(c *gin.Context) {
	var req UnwatchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := h.mgr.Unwatch(req.Path); err != nil {
		abortWithManagerError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}

// Files queries a root's view: everything, a glob, or changes since a tick
func (h *RootsHandler) Files(c *gin.Context) {
	var req FilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	w, err := h.mgr.Get(req.Path)
	if err != nil {
		abortWithManagerError(c, err)
		return
	}

	v := w.View()
	tick := v.Tick()
	var files []view.FileState
	switch {
	case req.Since > 0:
		files = v.Since(req.Since)
	case req.Glob != "":
		files, err = v.Glob(req.Glob)
	default:
		files = v.Files()
	}
	if err != nil {
		abortWithManagerError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, &FilesResponse{
		Root:  w.Root().Path(),
		Tick:  tick,
		Files: files,
	})
}

// Clock syncs the root to now and returns its clock
func (h *RootsHandler) Clock(c *gin.Context) {
	var req ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	timeout := time.Duration(req.SyncTimeoutMs) * time.Millisecond
	tick, err := h.mgr.SyncToNow(c.Request.Context(), req.Path, timeout)
	if err != nil {
		abortWithManagerError(c, err)
		return
	}

	w, err := h.mgr.Get(req.Path)
	if err != nil {
		abortWithManagerError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, &ClockResponse{
		Root:  w.Root().Path(),
		Tick:  tick,
		Clock: FormatClock(w.Info().StartedAt, tick),
	})
}

// FormatClock renders a root clock as c:<start unix>:<tick>. The start time
// tells two incarnations of the same root apart.
func FormatClock(startedAt time.Time, tick uint64) string {
	return fmt.Sprintf("c:%d:%d", startedAt.Unix(), tick)
}
