// Package snapshot holds the captured state of a tmux server.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/alchemmist/tmux-backup/internal/tmux"
)

// FormatVersion is written into every archive. Archives carrying another
// version are refused.
const FormatVersion = "1.0"

// ErrInvalid is wrapped by the errors Validate returns.
var ErrInvalid = errors.New("inconsistent snapshot")

// Snapshot is the state of a tmux server at one point in time. It is never
// modified once built.
type Snapshot struct {
	Version  string           `json:"version"`
	Client   tmux.ClientFocus `json:"client"`
	Sessions []tmux.Session   `json:"sessions"`
	Windows  []tmux.Window    `json:"windows"`
	Panes    []tmux.Pane      `json:"panes"`
}

// WindowsRelatedTo returns the windows linked into session, in snapshot
// order.
func (s Snapshot) WindowsRelatedTo(session tmux.Session) []tmux.Window {
	var out []tmux.Window
	for _, w := range s.Windows {
		if w.LinkedTo(session.Name) {
			out = append(out, w)
		}
	}
	return out
}

// PanesRelatedTo returns the panes named by the window layout. The result
// follows snapshot order, not layout order.
func (s Snapshot) PanesRelatedTo(w tmux.Window) ([]tmux.Pane, error) {
	ids, err := w.PaneIDs()
	if err != nil {
		return nil, err
	}
	want := make(map[tmux.PaneID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []tmux.Pane
	for _, p := range s.Panes {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Validate checks that every window links only sessions of the snapshot and
// that every pane of every layout was captured.
func (s Snapshot) Validate() error {
	sessions := make(map[string]struct{}, len(s.Sessions))
	for _, sess := range s.Sessions {
		sessions[sess.Name] = struct{}{}
	}
	panes := make(map[tmux.PaneID]struct{}, len(s.Panes))
	for _, p := range s.Panes {
		panes[p.ID] = struct{}{}
	}

	var errs []error
	for _, w := range s.Windows {
		for _, name := range w.Sessions {
			if _, ok := sessions[name]; !ok {
				errs = append(errs, fmt.Errorf("%w: window %s links unknown session %q", ErrInvalid, w.ID, name))
			}
		}
		ids, err := w.PaneIDs()
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
			continue
		}
		for _, id := range ids {
			if _, ok := panes[id]; !ok {
				errs = append(errs, fmt.Errorf("%w: window %s references missing pane %s", ErrInvalid, w.ID, id))
			}
		}
	}
	return errors.Join(errs...)
}

// Overview counts what a snapshot holds.
type Overview struct {
	Version  string
	Sessions int
	Windows  int
	Panes    int
}

func (o Overview) String() string {
	return fmt.Sprintf("%d sessions %d windows %d panes", o.Sessions, o.Windows, o.Panes)
}

func (s Snapshot) Overview() Overview {
	return Overview{
		Version:  s.Version,
		Sessions: len(s.Sessions),
		Windows:  len(s.Windows),
		Panes:    len(s.Panes),
	}
}
