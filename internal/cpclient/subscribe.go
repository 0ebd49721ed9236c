package cpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/openmined/watchd/internal/daemon/handlers"
)

const subscribeMaxMessageSize = 8 << 20

// Subscribe streams the settled batches of path to fn until ctx is done, the
// daemon ends the subscription or fn returns an error. A subscription ended
// by the daemon returns nil.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(*handlers.SubscribeEvent) error) error {
	wsURL, err := c.subscribeURL(path)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("User-Agent", UserAgent)
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if apiErr := dialAPIError(resp); apiErr != nil {
			return fmt.Errorf("subscribe: %w", apiErr)
		}
		return fmt.Errorf("%w: subscribe: %w", ErrDaemonUnreachable, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(subscribeMaxMessageSize)

	for {
		var event handlers.SubscribeEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscribe: %w", err)
		}
		if err := fn(&event); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

func (c *Client) subscribeURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("subscribe: bad base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/roots/subscribe"
	u.RawQuery = url.Values{"path": {path}}.Encode()
	return u.String(), nil
}

// dialAPIError decodes the error body of a refused upgrade.
func dialAPIError(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return nil
	}
	var apiErr APIError
	if err := jsonUnmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
		return nil
	}
	apiErr.Status = resp.StatusCode
	return &apiErr
}

