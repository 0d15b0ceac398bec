package restore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemmist/tmux-backup/internal/snapshot"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

type op struct {
	session string
	text    string
}

// fakeTarget hands out increasing ids and records every call. Calls are
// tagged with the session they act on so per-session order can be checked
// while sessions run concurrently.
type fakeTarget struct {
	mu        sync.Mutex
	ops       []op
	next      uint32
	windowOf  map[tmux.WindowID]string
	paneOf    map[tmux.PaneID]string
	sessionOf map[tmux.SessionID]string

	failNewSession map[string]bool
	failSplitIn    map[string]bool
	failSwitch     bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		next:      100,
		windowOf:  map[tmux.WindowID]string{},
		paneOf:    map[tmux.PaneID]string{},
		sessionOf: map[tmux.SessionID]string{},
	}
}

var errBoom = errors.New("boom")

func (f *fakeTarget) id() uint32 {
	f.next++
	return f.next
}

func (f *fakeTarget) record(session, format string, args ...any) {
	f.ops = append(f.ops, op{session: session, text: fmt.Sprintf(format, args...)})
}

func (f *fakeTarget) NewSession(_ context.Context, name, windowName, dir, command string) (tmux.SessionID, tmux.WindowID, tmux.PaneID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(name, "new-session %s %s %s %s", name, windowName, dir, command)
	if f.failNewSession[name] {
		return 0, 0, 0, errBoom
	}
	sid, wid, pid := tmux.SessionID(f.id()), tmux.WindowID(f.id()), tmux.PaneID(f.id())
	f.sessionOf[sid] = name
	f.windowOf[wid] = name
	f.paneOf[pid] = name
	return sid, wid, pid, nil
}

func (f *fakeTarget) NewWindow(_ context.Context, session tmux.SessionID, windowName, dir, command string) (tmux.WindowID, tmux.PaneID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.sessionOf[session]
	f.record(name, "new-window %s %s %s %s", session, windowName, dir, command)
	wid, pid := tmux.WindowID(f.id()), tmux.PaneID(f.id())
	f.windowOf[wid] = name
	f.paneOf[pid] = name
	return wid, pid, nil
}

func (f *fakeTarget) SplitWindow(_ context.Context, window tmux.WindowID, dir, command string) (tmux.PaneID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.windowOf[window]
	f.record(name, "split-window %s %s %s", window, dir, command)
	if f.failSplitIn[name] {
		return 0, errBoom
	}
	pid := tmux.PaneID(f.id())
	f.paneOf[pid] = name
	return pid, nil
}

func (f *fakeTarget) SelectLayout(_ context.Context, window tmux.WindowID, descriptor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(f.windowOf[window], "select-layout %s %s", window, descriptor)
	return nil
}

func (f *fakeTarget) SelectWindow(_ context.Context, window tmux.WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(f.windowOf[window], "select-window %s", window)
	return nil
}

func (f *fakeTarget) SelectPane(_ context.Context, pane tmux.PaneID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(f.paneOf[pane], "select-pane %s", pane)
	return nil
}

func (f *fakeTarget) SwitchClient(_ context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("", "switch-client %s", session)
	if f.failSwitch {
		return errBoom
	}
	return nil
}

func (f *fakeTarget) opsOf(session string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, o := range f.ops {
		if o.session == session {
			out = append(out, o.text)
		}
	}
	return out
}

const (
	threePanes = "035d,334x85,0,0{167x85,0,0,1,166x85,168,0[166x48,168,0,2,166x36,168,49,3]}"
	onePane    = "64ef,334x85,0,0,10"
)

// devSnapshot holds a session "dev" with a three pane window listed out of
// layout order and a single pane window, plus a session "ops".
func devSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		Version: snapshot.FormatVersion,
		Client:  tmux.ClientFocus{Current: "dev", Last: "ops"},
		Sessions: []tmux.Session{
			{ID: 1, Name: "dev", Dir: "/src"},
			{ID: 2, Name: "ops", Dir: "/var"},
		},
		Windows: []tmux.Window{
			{ID: 1, Index: 0, Active: false, Layout: threePanes, Name: "editor", Sessions: []string{"dev"}},
			{ID: 2, Index: 1, Active: true, Layout: onePane, Name: "shell", Sessions: []string{"dev"}},
			{ID: 3, Index: 0, Active: true, Layout: "64ef,334x85,0,0,20", Name: "logs", Sessions: []string{"ops"}},
		},
		Panes: []tmux.Pane{
			{ID: 3, Index: 2, Dir: "/src/c"},
			{ID: 2, Index: 1, Active: true, Dir: "/src/b"},
			{ID: 1, Index: 0, Dir: "/src/a"},
			{ID: 10, Index: 0, Active: true, Dir: "/home"},
			{ID: 20, Index: 0, Active: true, Dir: "/var/log"},
		},
	}
}

func TestRestoreCreationOrder(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()
	snap.Sessions = snap.Sessions[:1]

	report, err := New(target, Options{}).Restore(context.Background(), snap, nil)
	require.NoError(t, err)
	require.Len(t, report.Sessions, 1)
	assert.Equal(t, Restored, report.Sessions[0].Outcome)

	// ids: session $101, window @102, pane %103, splits %104 %105,
	// second window @106 with pane %107.
	assert.Equal(t, []string{
		"new-session dev editor /src/a ",
		"split-window @102 /src/b ",
		"split-window @102 /src/c ",
		"select-layout @102 " + threePanes,
		"new-window $101 shell /home ",
		"select-layout @106 " + onePane,
		"select-window @106",
		"select-pane %104",
		"select-pane %107",
	}, target.opsOf("dev"))
}

func TestRestorePairsEveryPane(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()

	report, err := New(target, Options{}).Restore(context.Background(), snap, map[string]bool{"ops": true})
	require.NoError(t, err)

	dev := report.Sessions[0]
	require.Len(t, dev.Pairs, 4)
	sources := make([]tmux.PaneID, len(dev.Pairs))
	targets := map[tmux.PaneID]bool{}
	for i, p := range dev.Pairs {
		sources[i] = p.Source.ID
		targets[p.Target] = true
	}
	assert.Equal(t, []tmux.PaneID{1, 2, 3, 10}, sources)
	assert.Len(t, targets, 4)

	var selected []string
	for _, o := range target.opsOf("dev") {
		if len(o) > len("select-pane") && o[:len("select-pane")] == "select-pane" {
			selected = append(selected, o)
		}
	}
	var want []string
	for _, p := range dev.Pairs {
		if p.Source.Active {
			want = append(want, "select-pane "+p.Target.String())
		}
	}
	assert.Equal(t, want, selected)
	assert.Len(t, selected, 2)
}

func TestRestoreSkipsPresentSessions(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()
	snap.Sessions = []tmux.Session{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	snap.Windows = []tmux.Window{
		{ID: 1, Layout: onePane, Name: "w", Sessions: []string{"a"}},
		{ID: 2, Layout: "64ef,334x85,0,0,20", Name: "w", Sessions: []string{"b"}},
	}

	report, err := New(target, Options{}).Restore(context.Background(), snap, map[string]bool{"a": true})
	require.NoError(t, err)

	assert.Equal(t, Skipped, report.Sessions[0].Outcome)
	assert.Equal(t, "a", report.Sessions[0].Name)
	assert.Equal(t, Restored, report.Sessions[1].Outcome)
	assert.Empty(t, target.opsOf("a"))
	assert.NotEmpty(t, target.opsOf("b"))
	assert.Equal(t, 1, report.Count(Skipped))
	assert.Equal(t, 0, report.Count(Failed))
}

func TestRestoreFocusOrder(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()
	snap.Client = tmux.ClientFocus{Current: "dev", Last: "ops"}

	_, err := New(target, Options{Parallelism: 1}).Restore(context.Background(), snap, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"switch-client ops", "switch-client dev"}, target.opsOf(""))
	last := target.ops[len(target.ops)-1]
	assert.Equal(t, "switch-client dev", last.text)
}

func TestRestoreFocusSkipsUnknownSessions(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()
	snap.Client = tmux.ClientFocus{Current: "dev", Last: "gone"}

	_, err := New(target, Options{}).Restore(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"switch-client dev"}, target.opsOf(""))
}

func TestRestoreFocusIncludesPresentSessions(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()

	_, err := New(target, Options{}).Restore(context.Background(), snap, map[string]bool{"dev": true, "ops": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"switch-client ops", "switch-client dev"}, target.opsOf(""))
}

func TestRestoreIsolatesSessionFailures(t *testing.T) {
	target := newFakeTarget()
	target.failSplitIn = map[string]bool{"dev": true}
	snap := devSnapshot()

	// one session at a time keeps the fake ids predictable
	report, err := New(target, Options{Parallelism: 1}).Restore(context.Background(), snap, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), `restore session "dev"`)

	dev, ops := report.Sessions[0], report.Sessions[1]
	assert.Equal(t, Failed, dev.Outcome)
	assert.ErrorIs(t, dev.Err, errBoom)
	assert.Len(t, dev.Pairs, 1)
	assert.Equal(t, Restored, ops.Outcome)

	// no layout or selection after the failed split
	assert.Equal(t, []string{
		"new-session dev editor /src/a ",
		"split-window @102 /src/b ",
	}, target.opsOf("dev")[:2])
	assert.Len(t, target.opsOf("dev"), 2)

	// focus only moves to sessions that exist
	assert.Equal(t, []string{"switch-client ops"}, target.opsOf(""))

	o := report.Overview()
	assert.Equal(t, 1, o.Sessions)
	assert.Equal(t, 1, o.Panes)
}

func TestRestoreAggregatesFailures(t *testing.T) {
	target := newFakeTarget()
	target.failNewSession = map[string]bool{"dev": true, "ops": true}

	report, err := New(target, Options{}).Restore(context.Background(), devSnapshot(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dev"`)
	assert.Contains(t, err.Error(), `"ops"`)
	assert.Equal(t, 2, report.Count(Failed))
	assert.Empty(t, target.opsOf(""))
}

func TestRestoreTopologyErrors(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()
	snap.Sessions = append(snap.Sessions, tmux.Session{ID: 3, Name: "empty"})
	snap.Windows = append(snap.Windows, tmux.Window{ID: 4, Layout: "64ef,334x85,0,0,99", Name: "ghost", Sessions: []string{"lonely"}})
	snap.Sessions = append(snap.Sessions, tmux.Session{ID: 4, Name: "lonely"})

	report, err := New(target, Options{}).Restore(context.Background(), snap, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTopology)

	byName := map[string]SessionResult{}
	for _, s := range report.Sessions {
		byName[s.Name] = s
	}
	assert.Equal(t, Restored, byName["dev"].Outcome)

	var terr *TopologyError
	require.True(t, errors.As(byName["empty"].Err, &terr))
	assert.Equal(t, "no windows", terr.Reason)

	require.True(t, errors.As(byName["lonely"].Err, &terr))
	assert.Equal(t, "ghost", terr.Window)
	assert.Empty(t, target.opsOf("lonely"))
}

func TestRestorePassesPaneCommand(t *testing.T) {
	target := newFakeTarget()
	snap := devSnapshot()
	snap.Sessions = snap.Sessions[1:]

	opts := Options{PaneCommand: func(p tmux.Pane) string { return "replay " + p.ID.String() }}
	_, err := New(target, opts).Restore(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, "new-session ops logs /var/log replay %20", target.opsOf("ops")[0])
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "restored", Restored.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestRestoreReportsFocusFailure(t *testing.T) {
	target := newFakeTarget()
	target.failSwitch = true

	report, err := New(target, Options{}).Restore(context.Background(), devSnapshot(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), `switch client to "dev"`)
	assert.Equal(t, 2, report.Count(Restored))
}
