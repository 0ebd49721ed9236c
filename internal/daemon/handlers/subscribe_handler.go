package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/openmined/watchd/internal/watchmgr"
)

const (
	subscribeWriteTimeout = 20 * time.Second
	closeReasonEnded      = "subscription ended"
)

type SubscribeHandler struct {
	mgr *watchmgr.Manager
}

func NewSubscribeHandler(mgr *watchmgr.Manager) *SubscribeHandler {
	return &SubscribeHandler{mgr: mgr}
}

// Subscribe upgrades to a websocket and streams the root's settled batches
// until the client goes away, the root is unwatched or the manager closes.
func (h *SubscribeHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	sub, err := h.mgr.Subscribe(req.Path)
	if err != nil {
		abortWithManagerError(c, err)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("subscribe accept", "error", err)
		return
	}

	// the stream is one way; CloseRead handles pings and notices the peer leaving
	ctx := conn.CloseRead(c.Request.Context())
	log := slog.With("root", sub.Root(), "remote", c.ClientIP())
	log.Debug("subscriber connected")

	for {
		select {
		case n, ok := <-sub.Notifications():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, closeReasonEnded)
				return
			}
			if err := h.write(ctx, conn, n, sub.Dropped()); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn("subscriber write", "error", err)
				}
				conn.CloseNow()
				return
			}

		case <-ctx.Done():
			log.Debug("subscriber disconnected")
			conn.CloseNow()
			return
		}
	}
}

func (h *SubscribeHandler) write(ctx context.Context, conn *websocket.Conn, n watchmgr.Notification, dropped uint64) error {
	w, err := h.mgr.Get(n.Root)
	clock := ""
	if err == nil {
		clock = FormatClock(w.Info().StartedAt, n.Tick)
	}

	ctx, cancel := context.WithTimeout(ctx, subscribeWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, &SubscribeEvent{
		Root:    n.Root,
		Tick:    n.Tick,
		Clock:   clock,
		Files:   n.Files,
		Dropped: dropped,
	})
}
