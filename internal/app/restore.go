package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alchemmist/tmux-backup/internal/archive"
	"github.com/alchemmist/tmux-backup/internal/restore"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

const (
	// PlaceholderSession keeps the server alive while sessions are created.
	PlaceholderSession = "[placeholder]"

	restoreDirPrefix = "tmux-backup-restore-"
	staleRestoreDir  = 10 * time.Minute
)

type RestoreResult struct {
	Path   string
	Report restore.Report
}

func (r RestoreResult) String() string {
	msg := fmt.Sprintf("restored %s from `%s`", r.Report.Overview(), r.Path)
	skipped, failed := r.Report.Count(restore.Skipped), r.Report.Count(restore.Failed)
	if skipped > 0 || failed > 0 {
		msg += fmt.Sprintf(" (%d skipped, %d failed)", skipped, failed)
	}
	return msg
}

// Sessions describes the outcome of every session, one line each.
func (r RestoreResult) Sessions() []string {
	lines := make([]string, 0, len(r.Report.Sessions))
	for _, s := range r.Report.Sessions {
		switch s.Outcome {
		case restore.Restored:
			lines = append(lines, fmt.Sprintf("restored %s: %d windows, %d panes", s.Name, s.Windows, len(s.Pairs)))
		case restore.Skipped:
			lines = append(lines, fmt.Sprintf("skipped %s: session already exists", s.Name))
		case restore.Failed:
			lines = append(lines, fmt.Sprintf("failed %s: %v", s.Name, s.Err))
		}
	}
	return lines
}

// Restore recreates the sessions of the backup at path, or of the latest
// backup when path is empty. The archive is fully read and checked before
// tmux is touched.
func (a *App) Restore(ctx context.Context, path string) (RestoreResult, error) {
	if path == "" {
		latest, ok := a.catalog.Latest()
		if !ok {
			return RestoreResult{}, ErrNoBackup
		}
		path = latest.Path
	}
	res := RestoreResult{Path: path}

	snap, err := archive.ReadMetadata(path)
	if err != nil {
		return res, err
	}
	if err := snap.Validate(); err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}

	cleanRestoreDirs(os.TempDir(), time.Now().Add(-staleRestoreDir), a.log)
	dir, err := os.MkdirTemp("", restoreDirPrefix)
	if err != nil {
		return res, err
	}
	if err := archive.Unpack(path, dir); err != nil {
		_ = os.RemoveAll(dir)
		return res, err
	}

	ownPlaceholder := !a.tmux.HasSession(ctx, PlaceholderSession)
	if err := a.tmux.StartServer(ctx, PlaceholderSession); err != nil {
		_ = os.RemoveAll(dir)
		return res, fmt.Errorf("start server: %w", err)
	}
	if ownPlaceholder {
		defer func() {
			if err := a.tmux.KillSession(ctx, PlaceholderSession); err != nil {
				a.log.Warn("remove placeholder session", zap.Error(err))
			}
		}()
	}
	names, err := a.tmux.SessionNames(ctx)
	if err != nil {
		_ = os.RemoveAll(dir)
		return res, err
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	shell, err := a.tmux.DefaultCommand(ctx)
	if err != nil {
		a.log.Warn("no default command, panes will use $SHELL", zap.Error(err))
	}

	engine := restore.New(a.tmux, restore.Options{
		PaneCommand: paneCommand(dir, shell),
		Parallelism: a.cfg.Parallelism,
		Logger:      a.log,
	})
	res.Report, err = engine.Restore(ctx, snap, present)
	return res, err
}

// paneCommand prints the saved content of a pane before handing it over to
// shell. Panes without saved content get the default command.
func paneCommand(dir, shell string) func(tmux.Pane) string {
	if shell == "" {
		shell = `"${SHELL:-/bin/sh}"`
	}
	return func(p tmux.Pane) string {
		file := archive.PaneContentPath(dir, p.ID)
		if _, err := os.Stat(file); err != nil {
			return ""
		}
		return fmt.Sprintf("cat %s; exec %s", shellQuote(file), shell)
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// cleanRestoreDirs removes the pane contents unpacked by restores older
// than cutoff. They cannot be removed by the restore itself: the new panes
// read them after it returns.
func cleanRestoreDirs(tmp string, cutoff time.Time, log *zap.Logger) {
	dirs, err := filepath.Glob(filepath.Join(tmp, restoreDirPrefix+"*"))
	if err != nil {
		return
	}
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug("remove restore directory", zap.String("path", dir), zap.Error(err))
		}
	}
}
