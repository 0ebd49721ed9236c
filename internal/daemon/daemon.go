// Package daemon runs the long lived watchd process: the watch manager for
// the configured roots plus the HTTP control plane in front of it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/watchd/internal/config"
	"github.com/openmined/watchd/internal/pause"
	"github.com/openmined/watchd/internal/utils"
	"github.com/openmined/watchd/internal/watchmgr"
	"golang.org/x/sync/errgroup"
)

var ErrDaemonLocked = errors.New("state dir locked by another watchd")

type Daemon struct {
	cfg  *config.Config
	mgr  *watchmgr.Manager
	cps  *ControlPlaneServer
	lock *flock.Flock
}

func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mgr := watchmgr.New(cfg, pause.NewController())
	cps := NewControlPlaneServer(&ControlPlaneConfig{
		Addr:      cfg.HTTPAddr,
		AuthToken: cfg.HTTPToken,
	}, mgr)

	return &Daemon{
		cfg:  cfg,
		mgr:  mgr,
		cps:  cps,
		lock: flock.New(cfg.LockPath()),
	}, nil
}

// Start blocks until ctx is done or the control plane fails.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.acquireLock(); err != nil {
		return err
	}
	defer d.releaseLock()

	slog.Info("watchd daemon start", "state_dir", d.cfg.StateDir, "backend", d.cfg.Backend, "batch_limit", d.cfg.BatchLimit)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.cps.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		return nil
	})

	// configured roots are best effort, one bad path doesn't stop the daemon
	eg.Go(func() error {
		for _, path := range d.cfg.Roots {
			if _, err := d.mgr.Watch(egCtx, path); err != nil {
				if egCtx.Err() != nil {
					return nil
				}
				slog.Error("failed to watch configured root", "root", path, "error", err)
			}
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("watchd daemon stopped")
	return nil
}

func (d *Daemon) Stop(ctx context.Context) error {
	d.mgr.Close()
	if err := d.cps.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop control plane: %w", err)
	}
	return nil
}

// Addr returns the control plane address once it is listening.
func (d *Daemon) Addr(ctx context.Context) (net.Addr, error) {
	return d.cps.Addr(ctx)
}

func (d *Daemon) Manager() *watchmgr.Manager {
	return d.mgr
}

func (d *Daemon) acquireLock() error {
	if err := utils.EnsureDir(d.cfg.StateDir); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock state dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrDaemonLocked, d.cfg.StateDir)
	}
	return nil
}

func (d *Daemon) releaseLock() {
	if !d.lock.Locked() {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		slog.Warn("unlock state dir", "error", err)
	}
}
