package handlers

import (
	"github.com/openmined/watchd/internal/view"
	"github.com/openmined/watchd/internal/watchmgr"
)

type RootsResponse struct {
	Roots []watchmgr.Info `json:"roots"`
}

type WatchRequest struct {
	Path string `json:"path" binding:"required"`
}

type WatchResponse struct {
	Root watchmgr.Info `json:"root"`
}

type UnwatchRequest struct {
	Path string `form:"path" binding:"required"`
}

type FilesRequest struct {
	Path  string `form:"path" binding:"required"`
	Glob  string `form:"glob"`
	Since uint64 `form:"since"`
}

type FilesResponse struct {
	Root  string           `json:"root"`
	Tick  uint64           `json:"tick"`
	Files []view.FileState `json:"files"`
}

type ClockRequest struct {
	Path          string `json:"path" binding:"required"`
	SyncTimeoutMs int64  `json:"sync_timeout_ms"`
}

type ClockResponse struct {
	Root  string `json:"root"`
	Tick  uint64 `json:"tick"`
	Clock string `json:"clock"`
}

type SubscribeRequest struct {
	Path string `form:"path" binding:"required"`
}

// SubscribeEvent is one websocket message of a subscription.
type SubscribeEvent struct {
	Root    string           `json:"root"`
	Tick    uint64           `json:"tick"`
	Clock   string           `json:"clock"`
	Files   []view.FileState `json:"files"`
	Dropped uint64           `json:"dropped,omitempty"`
}
