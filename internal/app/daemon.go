package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var ErrDaemonRunning = errors.New("daemon already running")

// RunDaemon saves and compacts every interval until ctx is done. One daemon
// runs per tmux server.
func (a *App) RunDaemon(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = a.cfg.SaveInterval
	}
	socket := a.tmux.SocketPath(ctx)
	unlock, err := acquireLock(socket)
	if err != nil {
		return err
	}
	defer unlock()

	a.log.Info("daemon started", zap.String("socket", socket), zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.autosave(ctx)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("daemon stopped")
			return nil
		case <-ticker.C:
			a.autosave(ctx)
		}
	}
}

func (a *App) autosave(ctx context.Context) {
	res, err := a.Save(ctx, SaveOptions{Compact: true, LinesToDrop: a.cfg.LinesToDrop})
	switch {
	case errors.Is(err, ErrNoSessions):
		a.log.Debug("nothing to save")
	case err != nil:
		a.log.Warn("daemon save failed", zap.Error(err))
	default:
		a.log.Debug("daemon saved",
			zap.String("path", res.Path),
			zap.Int("purged", len(res.Purged)),
			zap.Int("backups", a.catalog.Len()))
	}
}

func acquireLock(socketPath string) (func(), error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}
	if err := os.MkdirAll(runtimeDir, 0o755); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(socketPath))
	lockPath := filepath.Join(runtimeDir, fmt.Sprintf("tmux-backup-%x.lock", h.Sum64()))
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, ErrDaemonRunning
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
