// Package catalog manages the backup files of a directory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alchemmist/tmux-backup/internal/archive"
	"github.com/alchemmist/tmux-backup/internal/retention"
	"github.com/alchemmist/tmux-backup/internal/snapshot"
)

const defaultDirPerm = 0o755

// Catalog is the list of backups found in a directory, oldest first.
type Catalog struct {
	dir      string
	strategy retention.Strategy
	loc      *time.Location
	log      *zap.Logger

	mu      sync.Mutex
	backups []retention.Backup
}

type Option func(*Catalog)

// WithLocation reads backup timestamps in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *Catalog) { c.loc = loc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// New creates dir when missing and scans it.
func New(dir string, strategy retention.Strategy, opts ...Option) (*Catalog, error) {
	c := &Catalog{dir: dir, strategy: strategy, loc: time.Local, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Dir() string                  { return c.dir }
func (c *Catalog) Strategy() retention.Strategy { return c.strategy }

// Refresh rescans the directory. Files not named like backups are ignored.
func (c *Catalog) Refresh() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read backup directory: %w", err)
	}

	backups := make([]retention.Backup, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		created, ok := archive.ParseBackupPath(e.Name(), c.loc)
		if !ok {
			continue
		}
		backups = append(backups, retention.Backup{Path: filepath.Join(c.dir, e.Name()), CreatedAt: created})
	}
	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Path < backups[j].Path
		}
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})

	c.mu.Lock()
	c.backups = backups
	c.mu.Unlock()
	return nil
}

// Backups returns a copy of the backups, oldest first.
func (c *Catalog) Backups() []retention.Backup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]retention.Backup(nil), c.backups...)
}

func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backups)
}

// Latest returns the most recent backup.
func (c *Catalog) Latest() (retention.Backup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.backups) == 0 {
		return retention.Backup{}, false
	}
	return c.backups[len(c.backups)-1], true
}

// NewBackupPath returns where a backup taken at now goes.
func (c *Catalog) NewBackupPath(now time.Time) string {
	return archive.NewBackupPath(c.dir, now.In(c.loc))
}

func (c *Catalog) Plan(now time.Time) retention.Plan {
	return c.strategy.Plan(c.Backups(), now.In(c.loc))
}

// Compact deletes the purgeable backups and rescans. It keeps going past
// files it cannot delete and reports them all.
func (c *Catalog) Compact(now time.Time) ([]retention.Backup, error) {
	plan := c.Plan(now)
	removed := make([]retention.Backup, 0, len(plan.Purgeable))
	var errs []error
	for _, b := range plan.Purgeable {
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		c.log.Debug("purged backup", zap.String("path", b.Path))
		removed = append(removed, b)
	}
	if err := c.Refresh(); err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// Detail is what a backup holds. Err is set when the archive could not be
// read; the other fields are then partial.
type Detail struct {
	retention.Backup
	Size     int64
	Overview snapshot.Overview
	Err      error
}

// Details reads the given backups concurrently, at most parallelism at a
// time. Results follow the input order.
func Details(ctx context.Context, backups []retention.Backup, parallelism int) []Detail {
	out := make([]Detail, len(backups))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, b := range backups {
		g.Go(func() error {
			out[i] = detail(ctx, b)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func detail(ctx context.Context, b retention.Backup) Detail {
	d := Detail{Backup: b}
	if err := ctx.Err(); err != nil {
		d.Err = err
		return d
	}
	info, err := os.Stat(b.Path)
	if err != nil {
		d.Err = err
		return d
	}
	d.Size = info.Size()
	snap, err := archive.ReadMetadata(b.Path)
	if err != nil {
		d.Err = err
		return d
	}
	d.Overview = snap.Overview()
	return d
}
