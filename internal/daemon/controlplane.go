package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openmined/watchd/internal/daemon/middleware"
	"github.com/openmined/watchd/internal/watchmgr"
)

const defaultRateLimit = 50

// ControlPlaneConfig contains configuration for the control plane server
type ControlPlaneConfig struct {
	Addr      string // address to bind, host:port
	AuthToken string // bearer token, empty disables auth
}

type ControlPlaneServer struct {
	config *ControlPlaneConfig
	server *http.Server

	// listening is closed once addr is set
	listening chan struct{}
	addr      net.Addr
}

func NewControlPlaneServer(config *ControlPlaneConfig, mgr *watchmgr.Manager) *ControlPlaneServer {
	routes := SetupRoutes(mgr, &RouteConfig{
		Auth: middleware.TokenAuthConfig{
			Token: config.AuthToken,
		},
		RateLimit: defaultRateLimit,
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// clock requests block for up to the sync timeout
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return &ControlPlaneServer{
		config:    config,
		server:    httpServer,
		listening: make(chan struct{}),
	}
}

// Start serves until Stop is called.
func (s *ControlPlaneServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.addr = ln.Addr()
	close(s.listening)

	slog.Info("control plane start", "addr", fmt.Sprintf("http://%s", s.addr), "auth", s.config.AuthToken != "")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Addr blocks until the server is listening and returns the bound address.
func (s *ControlPlaneServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.listening:
		return s.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}
