package snapshot

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/alchemmist/tmux-backup/internal/tmux"
)

// Source answers the four queries a capture needs. *tmux.Client implements
// it.
type Source interface {
	CurrentClient(ctx context.Context) (tmux.ClientFocus, error)
	ListSessions(ctx context.Context) ([]tmux.Session, error)
	ListWindows(ctx context.Context) ([]tmux.Window, error)
	ListPanes(ctx context.Context) ([]tmux.Pane, error)
}

// Capture queries src concurrently. A failed query fails the capture; no
// partial snapshot is ever returned.
func Capture(ctx context.Context, src Source) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := src.CurrentClient(ctx)
		if err != nil {
			return fmt.Errorf("query client: %w", err)
		}
		snap.Client = c
		return nil
	})
	g.Go(func() error {
		s, err := src.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		snap.Sessions = s
		return nil
	})
	g.Go(func() error {
		w, err := src.ListWindows(ctx)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		snap.Windows = w
		return nil
	})
	g.Go(func() error {
		p, err := src.ListPanes(ctx)
		if err != nil {
			return fmt.Errorf("list panes: %w", err)
		}
		snap.Panes = p
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	snap.Version = FormatVersion
	return snap, nil
}
