package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alchemmist/tmux-backup/internal/archive"
	"github.com/alchemmist/tmux-backup/internal/retention"
	"github.com/alchemmist/tmux-backup/internal/snapshot"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

type SaveOptions struct {
	// Compact deletes the purgeable backups once the new one is written.
	Compact bool
	// LinesToDrop trims the last lines of panes sitting at a shell prompt.
	LinesToDrop int
}

type SaveResult struct {
	Path     string
	Overview snapshot.Overview
	Purged   []retention.Backup
}

func (r SaveResult) String() string {
	msg := fmt.Sprintf("%s, persisted to `%s`", r.Overview, r.Path)
	if len(r.Purged) > 0 {
		msg += fmt.Sprintf(", %d outdated backups deleted", len(r.Purged))
	}
	return msg
}

// Save captures the server into a new backup of the catalog.
func (a *App) Save(ctx context.Context, opts SaveOptions) (SaveResult, error) {
	snap, err := snapshot.Capture(ctx, a.tmux)
	if err != nil {
		return SaveResult{}, err
	}
	if len(snap.Sessions) == 0 {
		return SaveResult{}, ErrNoSessions
	}

	contents, err := a.capturePanes(ctx, snap.Panes, opts.LinesToDrop)
	if err != nil {
		return SaveResult{}, err
	}

	now := a.now()
	path := a.catalog.NewBackupPath(now)
	if err := archive.Write(path, snap, contents); err != nil {
		return SaveResult{}, fmt.Errorf("write backup: %w", err)
	}
	res := SaveResult{Path: path, Overview: snap.Overview()}
	a.log.Info("saved backup",
		zap.String("path", path),
		zap.Int("sessions", res.Overview.Sessions),
		zap.Int("windows", res.Overview.Windows),
		zap.Int("panes", res.Overview.Panes))

	if err := a.catalog.Refresh(); err != nil {
		return res, err
	}
	if opts.Compact {
		res.Purged, err = a.catalog.Compact(now)
		if err != nil {
			return res, fmt.Errorf("compact: %w", err)
		}
	}
	return res, nil
}

func (a *App) capturePanes(ctx context.Context, panes []tmux.Pane, linesToDrop int) (map[tmux.PaneID][]byte, error) {
	out := make([][]byte, len(panes))
	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Parallelism > 0 {
		g.SetLimit(a.cfg.Parallelism)
	}
	for i, p := range panes {
		g.Go(func() error {
			content, err := a.tmux.CapturePane(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("capture pane %s: %w", p.ID, err)
			}
			if isShell(p.Command) {
				content = dropLastLines(content, linesToDrop)
			}
			out[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	contents := make(map[tmux.PaneID][]byte, len(panes))
	for i, p := range panes {
		contents[p.ID] = out[i]
	}
	return contents, nil
}

var shells = map[string]bool{"sh": true, "bash": true, "zsh": true, "fish": true}

func isShell(command string) bool {
	return shells[filepath.Base(strings.TrimPrefix(command, "-"))]
}

// dropLastLines removes the trailing blank lines of content and then its
// last n lines.
func dropLastLines(content []byte, n int) []byte {
	if n <= 0 {
		return content
	}
	trimmed := bytes.TrimRight(content, "\r\n\t ")
	if len(trimmed) == 0 {
		return nil
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	if n >= len(lines) {
		return nil
	}
	kept := bytes.Join(lines[:len(lines)-n], []byte("\n"))
	return append(kept, '\n')
}
