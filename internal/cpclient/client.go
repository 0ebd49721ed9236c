// Package cpclient talks to a running watchd control plane.
package cpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/watchd/internal/daemon/handlers"
	"github.com/openmined/watchd/internal/version"
)

var UserAgent = fmt.Sprintf("watchd/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

var ErrDaemonUnreachable = errors.New("watchd daemon unreachable")

// APIError is an error body returned by the control plane.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	client  *req.Client
}

// New creates a client for the control plane at baseURL, e.g.
// http://localhost:7939. An empty token sends no Authorization header.
func New(baseURL, token string) *Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(UserAgent).
		SetTimeout(2 * time.Minute).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if token != "" {
		c.SetCommonBearerAuthToken(token)
	}
	return &Client{baseURL: baseURL, token: token, client: c}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Status(ctx context.Context) (status *handlers.StatusResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get("/v1/status")
	if err := handleAPIError(resp, err, "status"); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) ListRoots(ctx context.Context) (roots *handlers.RootsResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&roots).
		Get("/v1/roots")
	if err := handleAPIError(resp, err, "list roots"); err != nil {
		return nil, err
	}
	return roots, nil
}

func (c *Client) Watch(ctx context.Context, path string) (watched *handlers.WatchResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&handlers.WatchRequest{Path: path}).
		SetSuccessResult(&watched).
		Post("/v1/roots")
	if err := handleAPIError(resp, err, "watch"); err != nil {
		return nil, err
	}
	return watched, nil
}

func (c *Client) Unwatch(ctx context.Context, path string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		Delete("/v1/roots")
	return handleAPIError(resp, err, "unwatch")
}

// FilesQuery selects what Files returns; Since wins over Glob.
type FilesQuery struct {
	Glob  string
	Since uint64
}

func (c *Client) Files(ctx context.Context, path string, q FilesQuery) (files *handlers.FilesResponse, err error) {
	r := c.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetSuccessResult(&files)
	if q.Glob != "" {
		r.SetQueryParam("glob", q.Glob)
	}
	if q.Since > 0 {
		r.SetQueryParam("since", strconv.FormatUint(q.Since, 10))
	}

	resp, err := r.Get("/v1/roots/files")
	if err := handleAPIError(resp, err, "files"); err != nil {
		return nil, err
	}
	return files, nil
}

// Clock syncs path to now. A zero timeout uses the daemon's default.
func (c *Client) Clock(ctx context.Context, path string, timeout time.Duration) (clock *handlers.ClockResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&handlers.ClockRequest{Path: path, SyncTimeoutMs: timeout.Milliseconds()}).
		SetSuccessResult(&clock).
		Post("/v1/roots/clock")
	if err := handleAPIError(resp, err, "clock"); err != nil {
		return nil, err
	}
	return clock, nil
}

func (c *Client) Recrawl(ctx context.Context, path, reason string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&handlers.RecrawlRequest{Path: path, Reason: reason}).
		Post("/v1/debug/recrawl")
	return handleAPIError(resp, err, "recrawl")
}

func (c *Client) PauseWatchers(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Post("/v1/debug/pause-watchers")
	return handleAPIError(resp, err, "pause watchers")
}

func (c *Client) UnpauseWatchers(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Post("/v1/debug/unpause-watchers")
	return handleAPIError(resp, err, "unpause watchers")
}

// handleAPIError folds transport errors and error responses into one error.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrDaemonUnreachable, operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.Status = resp.StatusCode
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("%s: unexpected status %d: %s", operation, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return nil
}
