// Package restore rebuilds the sessions of a snapshot on a live tmux server.
package restore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alchemmist/tmux-backup/internal/snapshot"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

// ErrTopology is wrapped by *TopologyError.
var ErrTopology = errors.New("invalid topology")

// TopologyError is a session without windows or a window without panes.
type TopologyError struct {
	Session string
	Window  string
	Reason  string
}

func (e *TopologyError) Error() string {
	if e.Window != "" {
		return fmt.Sprintf("session %q window %q: %s", e.Session, e.Window, e.Reason)
	}
	return fmt.Sprintf("session %q: %s", e.Session, e.Reason)
}

func (e *TopologyError) Unwrap() error { return ErrTopology }

// Target is the server sessions are rebuilt on. *tmux.Client implements it.
type Target interface {
	NewSession(ctx context.Context, name, windowName, dir, command string) (tmux.SessionID, tmux.WindowID, tmux.PaneID, error)
	NewWindow(ctx context.Context, session tmux.SessionID, windowName, dir, command string) (tmux.WindowID, tmux.PaneID, error)
	SplitWindow(ctx context.Context, window tmux.WindowID, dir, command string) (tmux.PaneID, error)
	SelectLayout(ctx context.Context, window tmux.WindowID, descriptor string) error
	SelectWindow(ctx context.Context, window tmux.WindowID) error
	SelectPane(ctx context.Context, pane tmux.PaneID) error
	SwitchClient(ctx context.Context, session string) error
}

// Pair ties a captured pane to the pane created for it.
type Pair struct {
	Source tmux.Pane
	Target tmux.PaneID
}

type Outcome int

const (
	Restored Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Restored:
		return "restored"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SessionResult tells what happened to one session. Pairs holds the panes
// created before a failure too.
type SessionResult struct {
	Name    string
	Outcome Outcome
	Windows int
	Pairs   []Pair
	Err     error
}

// Report lists every session of the snapshot in snapshot order.
type Report struct {
	Sessions []SessionResult
}

// Overview counts what was actually created.
func (r Report) Overview() snapshot.Overview {
	var o snapshot.Overview
	for _, s := range r.Sessions {
		if s.Outcome != Restored {
			continue
		}
		o.Sessions++
		o.Windows += s.Windows
		o.Panes += len(s.Pairs)
	}
	return o
}

func (r Report) Count(o Outcome) int {
	n := 0
	for _, s := range r.Sessions {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

type Options struct {
	// PaneCommand returns the command started in the pane recreated for p.
	// Empty means the default command of the server.
	PaneCommand func(p tmux.Pane) string
	// Parallelism bounds the sessions built at once. Zero means unbounded.
	Parallelism int
	Logger      *zap.Logger
}

type Engine struct {
	target Target
	opts   Options
	log    *zap.Logger
}

func New(target Target, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{target: target, opts: opts, log: log}
}

// Restore creates every session of snap whose name is not in present, then
// moves the client to the captured last and current sessions, in that
// order. Sessions are built concurrently and a failing session does not stop
// the others. The returned error joins every failure.
func (e *Engine) Restore(ctx context.Context, snap snapshot.Snapshot, present map[string]bool) (Report, error) {
	results := make([]SessionResult, len(snap.Sessions))

	var g errgroup.Group
	if e.opts.Parallelism > 0 {
		g.SetLimit(e.opts.Parallelism)
	}
	for i, sess := range snap.Sessions {
		if present[sess.Name] {
			e.log.Info("session already exists, skipping", zap.String("session", sess.Name))
			results[i] = SessionResult{Name: sess.Name, Outcome: Skipped}
			continue
		}
		g.Go(func() error {
			res := e.restoreSession(ctx, snap, sess)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	available := make(map[string]bool, len(results))
	for _, res := range results {
		switch res.Outcome {
		case Failed:
			errs = append(errs, fmt.Errorf("restore session %q: %w", res.Name, res.Err))
		default:
			available[res.Name] = true
		}
	}

	for _, name := range []string{snap.Client.Last, snap.Client.Current} {
		if name == "" || !available[name] {
			continue
		}
		if err := e.target.SwitchClient(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("switch client to %q: %w", name, err))
		}
	}

	return Report{Sessions: results}, errors.Join(errs...)
}

func (e *Engine) restoreSession(ctx context.Context, snap snapshot.Snapshot, sess tmux.Session) SessionResult {
	res := SessionResult{Name: sess.Name, Outcome: Restored}
	log := e.log.With(zap.String("session", sess.Name))

	fail := func(err error) SessionResult {
		log.Warn("session restore failed", zap.Error(err))
		res.Outcome = Failed
		res.Err = err
		return res
	}

	windows := snap.WindowsRelatedTo(sess)
	if len(windows) == 0 {
		return fail(&TopologyError{Session: sess.Name, Reason: "no windows"})
	}

	var sessionID tmux.SessionID
	for i, w := range windows {
		panes, err := orderedPanes(snap, sess, w)
		if err != nil {
			return fail(err)
		}

		first := panes[0]
		var windowID tmux.WindowID
		var paneID tmux.PaneID
		if i == 0 {
			sessionID, windowID, paneID, err = e.target.NewSession(ctx, sess.Name, w.Name, first.Dir, e.command(first))
		} else {
			windowID, paneID, err = e.target.NewWindow(ctx, sessionID, w.Name, first.Dir, e.command(first))
		}
		if err != nil {
			return fail(err)
		}
		res.Pairs = append(res.Pairs, Pair{Source: first, Target: paneID})

		for _, p := range panes[1:] {
			id, err := e.target.SplitWindow(ctx, windowID, p.Dir, e.command(p))
			if err != nil {
				return fail(err)
			}
			res.Pairs = append(res.Pairs, Pair{Source: p, Target: id})
		}

		if err := e.target.SelectLayout(ctx, windowID, w.Layout); err != nil {
			return fail(err)
		}
		if w.Active {
			if err := e.target.SelectWindow(ctx, windowID); err != nil {
				return fail(err)
			}
		}
		res.Windows++
		log.Debug("window restored", zap.String("window", w.Name), zap.Stringer("id", windowID), zap.Int("panes", len(panes)))
	}

	for _, pair := range res.Pairs {
		if !pair.Source.Active {
			continue
		}
		if err := e.target.SelectPane(ctx, pair.Target); err != nil {
			return fail(err)
		}
	}

	log.Info("session restored", zap.Int("windows", res.Windows), zap.Int("panes", len(res.Pairs)))
	return res
}

func (e *Engine) command(p tmux.Pane) string {
	if e.opts.PaneCommand == nil {
		return ""
	}
	return e.opts.PaneCommand(p)
}

// orderedPanes returns the panes of w in layout order, which is the order
// they must be created in for select-layout to put them back in place.
func orderedPanes(snap snapshot.Snapshot, sess tmux.Session, w tmux.Window) ([]tmux.Pane, error) {
	ids, err := w.PaneIDs()
	if err != nil {
		return nil, err
	}
	panes, err := snap.PanesRelatedTo(w)
	if err != nil {
		return nil, err
	}
	if len(panes) == 0 {
		return nil, &TopologyError{Session: sess.Name, Window: w.Name, Reason: "no panes"}
	}
	if len(panes) != len(ids) {
		return nil, &TopologyError{
			Session: sess.Name,
			Window:  w.Name,
			Reason:  fmt.Sprintf("layout names %d panes, snapshot has %d", len(ids), len(panes)),
		}
	}

	pos := make(map[tmux.PaneID]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.SliceStable(panes, func(i, j int) bool { return pos[panes[i].ID] < pos[panes[j].ID] })
	return panes, nil
}
