package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/watchd/internal/cookie"
	"github.com/openmined/watchd/internal/ingest"
	"github.com/openmined/watchd/internal/root"
	"github.com/openmined/watchd/internal/view"
	"github.com/openmined/watchd/internal/watchmgr"
)

const (
	CodeOk                 string = "OK"
	ErrCodeBadRequest      string = "ERR_BAD_REQUEST"
	ErrCodeUnknownError    string = "ERR_UNKNOWN_ERROR"
	ErrCodeRootNotWatched  string = "ERR_ROOT_NOT_WATCHED"
	ErrCodeAlreadyWatched  string = "ERR_ALREADY_WATCHED"
	ErrCodeNotADirectory   string = "ERR_NOT_A_DIRECTORY"
	ErrCodeStartFailed     string = "ERR_START_FAILED"
	ErrCodeSyncTimeout     string = "ERR_SYNC_TIMEOUT"
	ErrCodeCookieAborted   string = "ERR_COOKIE_ABORTED"
	ErrCodeBadGlobPattern  string = "ERR_BAD_GLOB_PATTERN"
	ErrCodeManagerShutdown string = "ERR_SHUTTING_DOWN"
)

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

// abortWithManagerError maps a watch manager error to a status and code.
func abortWithManagerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, watchmgr.ErrRootNotWatched):
		AbortWithError(c, http.StatusNotFound, ErrCodeRootNotWatched, err)
	case errors.Is(err, watchmgr.ErrAlreadyWatched):
		AbortWithError(c, http.StatusConflict, ErrCodeAlreadyWatched, err)
	case errors.Is(err, watchmgr.ErrManagerClosed):
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeManagerShutdown, err)
	case errors.Is(err, root.ErrNotADirectory):
		AbortWithError(c, http.StatusBadRequest, ErrCodeNotADirectory, err)
	case errors.Is(err, ingest.ErrStartFailed):
		AbortWithError(c, http.StatusInternalServerError, ErrCodeStartFailed, err)
	case errors.Is(err, cookie.ErrSyncTimeout):
		AbortWithError(c, http.StatusGatewayTimeout, ErrCodeSyncTimeout, err)
	case errors.Is(err, cookie.ErrAborted):
		AbortWithError(c, http.StatusConflict, ErrCodeCookieAborted, err)
	case errors.Is(err, view.ErrBadPattern):
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadGlobPattern, err)
	default:
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
	}
}
