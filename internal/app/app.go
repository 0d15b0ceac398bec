// Package app wires tmux, the archive format and the backup catalog into the
// commands of tmux-backup.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/alchemmist/tmux-backup/internal/catalog"
	"github.com/alchemmist/tmux-backup/internal/config"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

var (
	ErrNoSessions = errors.New("no tmux sessions to save")
	ErrNoBackup   = errors.New("no backup to restore")
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	tmux    *tmux.Client
	catalog *catalog.Catalog
	now     func() time.Time
}

// New validates cfg and opens the backup catalog.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	strategy, err := cfg.RetentionStrategy()
	if err != nil {
		return nil, err
	}
	cat, err := catalog.New(cfg.BackupDir, strategy, catalog.WithLogger(log))
	if err != nil {
		return nil, err
	}

	opts := []tmux.Option{tmux.WithLogger(log)}
	if cfg.TmuxSocket != "" {
		opts = append(opts, tmux.WithSocket(cfg.TmuxSocket))
	}
	return &App{
		cfg:     cfg,
		log:     log,
		tmux:    tmux.NewClient(cfg.TmuxBin, opts...),
		catalog: cat,
		now:     time.Now,
	}, nil
}

func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// Notify prints msg to w, or shows it in the tmux status line when toTmux
// is set.
func (a *App) Notify(ctx context.Context, w io.Writer, toTmux bool, msg string) error {
	if toTmux {
		return a.tmux.DisplayMessage(ctx, msg)
	}
	_, err := fmt.Fprintln(w, msg)
	return err
}
