package tmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alchemmist/tmux-backup/internal/layout"
)

// Format strings handed to tmux -F. Each record parser below reads exactly
// one line printed with the matching format.
const (
	SessionFormat = "#{session_id}:'#{session_name}':#{session_path}"
	WindowFormat  = "#{window_id}:#{window_index}:#{?window_active,true,false}:#{window_layout}:'#{window_name}':'#{window_linked_sessions_list}'"
	PaneFormat    = "#{pane_id}:#{pane_index}:#{?pane_active,true,false}:'#{pane_title}':'#{pane_current_command}':#{pane_current_path}"
	ClientFormat  = "'#{client_session}':'#{client_last_session}'"
)

// ErrParse is wrapped by every *ParseError.
var ErrParse = errors.New("unexpected tmux output")

// ParseError reports a line or field tmux printed that does not match the
// format we asked for.
type ParseError struct {
	Desc   string
	Intent string
	Input  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parsing %s: expected %s, got %q", e.Desc, e.Intent, e.Input)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// Session is one tmux session.
type Session struct {
	ID   SessionID `json:"id"`
	Name string    `json:"name"`
	Dir  string    `json:"dirpath"`
}

// Window is one tmux window. Sessions lists every session the window is
// linked into.
type Window struct {
	ID       WindowID `json:"id"`
	Index    uint16   `json:"index"`
	Active   bool     `json:"is_active"`
	Layout   string   `json:"layout"`
	Name     string   `json:"name"`
	Sessions []string `json:"sessions"`
}

// PaneIDs returns the ids of the panes found in the window layout, in the
// order they have to be created.
func (w Window) PaneIDs() ([]PaneID, error) {
	l, err := layout.Parse(w.Layout)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", w.ID, err)
	}
	raw := l.PaneIDs()
	ids := make([]PaneID, len(raw))
	for i, id := range raw {
		ids[i] = PaneID(id)
	}
	return ids, nil
}

// LinkedTo reports whether the window belongs to the named session.
func (w Window) LinkedTo(session string) bool {
	for _, s := range w.Sessions {
		if s == session {
			return true
		}
	}
	return false
}

// Pane is one tmux pane.
type Pane struct {
	ID      PaneID `json:"id"`
	Index   uint16 `json:"index"`
	Active  bool   `json:"is_active"`
	Title   string `json:"title"`
	Command string `json:"command"`
	Dir     string `json:"dirpath"`
}

// ClientFocus is the current and last session of the client. Either name is
// empty when tmux has nothing to report.
type ClientFocus struct {
	Current string `json:"session_name"`
	Last    string `json:"last_session_name"`
}

func ParseSession(line string) (Session, error) {
	f := fields{desc: "Session", intent: SessionFormat, line: line}
	var s Session
	var err error
	if s.ID, err = ParseSessionID(f.plain()); err != nil {
		return Session{}, err
	}
	s.Name = f.quoted(false)
	s.Dir = f.rest()
	if err := f.err(); err != nil {
		return Session{}, err
	}
	return s, nil
}

func ParseWindow(line string) (Window, error) {
	f := fields{desc: "Window", intent: WindowFormat, line: line}
	var w Window
	var err error
	if w.ID, err = ParseWindowID(f.plain()); err != nil {
		return Window{}, err
	}
	w.Index = f.index()
	w.Active = f.flag()
	w.Layout = f.plain()
	w.Name = f.quoted(false)
	linked := f.quoted(true)
	if err := f.err(); err != nil {
		return Window{}, err
	}
	if _, err := layout.Parse(w.Layout); err != nil {
		return Window{}, &ParseError{Desc: "Window", Intent: "#{window_layout}", Input: w.Layout, Err: err}
	}
	if linked != "" {
		w.Sessions = strings.Split(linked, ",")
	}
	return w, nil
}

func ParsePane(line string) (Pane, error) {
	f := fields{desc: "Pane", intent: PaneFormat, line: line}
	var p Pane
	var err error
	if p.ID, err = ParsePaneID(f.plain()); err != nil {
		return Pane{}, err
	}
	p.Index = f.index()
	p.Active = f.flag()
	p.Title = f.quoted(false)
	p.Command = f.quoted(false)
	p.Dir = f.rest()
	if err := f.err(); err != nil {
		return Pane{}, err
	}
	return p, nil
}

func ParseClientFocus(line string) (ClientFocus, error) {
	f := fields{desc: "ClientFocus", intent: ClientFormat, line: line}
	c := ClientFocus{
		Current: f.quoted(false),
		Last:    f.quoted(true),
	}
	if err := f.err(); err != nil {
		return ClientFocus{}, err
	}
	return c, nil
}

// fields walks a ':' separated record. The first failure sticks and every
// later call becomes a no-op, so parsers read straight through and check
// err once.
type fields struct {
	desc   string
	intent string
	line   string
	pos    int
	failed bool
}

func (f *fields) err() error {
	if f.failed {
		return &ParseError{Desc: f.desc, Intent: f.intent, Input: f.line}
	}
	return nil
}

// plain reads up to the next ':'.
func (f *fields) plain() string {
	if f.failed {
		return ""
	}
	rest := f.line[f.pos:]
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		f.failed = true
		return ""
	}
	f.pos += i + 1
	return rest[:i]
}

// rest consumes everything left.
func (f *fields) rest() string {
	if f.failed {
		return ""
	}
	s := f.line[f.pos:]
	f.pos = len(f.line)
	return s
}

func (f *fields) index() uint16 {
	s := f.plain()
	if f.failed {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || s == "" || s[0] == '+' {
		f.failed = true
		return 0
	}
	return uint16(v)
}

func (f *fields) flag() bool {
	switch f.plain() {
	case "true":
		return true
	case "false":
		return false
	default:
		f.failed = true
		return false
	}
}

// quoted reads a single-quoted field. tmux does not escape quotes inside
// names, so the closing quote is the first one followed by ':' or, for the
// last field, by the end of the line. A backslash-escaped quote is unescaped.
func (f *fields) quoted(last bool) string {
	if f.failed {
		return ""
	}
	rest := f.line[f.pos:]
	if len(rest) == 0 || rest[0] != '\'' {
		f.failed = true
		return ""
	}
	for i := 1; i < len(rest); i++ {
		if rest[i] != '\'' || rest[i-1] == '\\' {
			continue
		}
		if last && i == len(rest)-1 {
			f.pos = len(f.line)
			return unescape(rest[1:i])
		}
		if !last && i+1 < len(rest) && rest[i+1] == ':' {
			f.pos += i + 2
			return unescape(rest[1:i])
		}
	}
	f.failed = true
	return ""
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\'`, `'`)
}

func parseLines[T any](out string, parse func(string) (T, error)) ([]T, error) {
	lines := splitLines(out)
	records := make([]T, 0, len(lines))
	for _, line := range lines {
		r, err := parse(line)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
