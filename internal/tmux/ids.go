package tmux

import (
	"strconv"
)

// SessionID is a tmux session id such as "$3".
type SessionID uint32

// WindowID is a tmux window id such as "@12".
type WindowID uint32

// PaneID is a tmux pane id such as "%42".
type PaneID uint32

const (
	sessionSigil = '$'
	windowSigil  = '@'
	paneSigil    = '%'
)

func (id SessionID) String() string { return formatID(sessionSigil, uint32(id)) }
func (id WindowID) String() string  { return formatID(windowSigil, uint32(id)) }
func (id PaneID) String() string    { return formatID(paneSigil, uint32(id)) }

func ParseSessionID(s string) (SessionID, error) {
	v, err := parseID(s, sessionSigil, "SessionID", "#{session_id}")
	return SessionID(v), err
}

func ParseWindowID(s string) (WindowID, error) {
	v, err := parseID(s, windowSigil, "WindowID", "#{window_id}")
	return WindowID(v), err
}

func ParsePaneID(s string) (PaneID, error) {
	v, err := parseID(s, paneSigil, "PaneID", "#{pane_id}")
	return PaneID(v), err
}

func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id WindowID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id PaneID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *SessionID) UnmarshalText(b []byte) error {
	v, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id *WindowID) UnmarshalText(b []byte) error {
	v, err := ParseWindowID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id *PaneID) UnmarshalText(b []byte) error {
	v, err := ParsePaneID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func formatID(sigil byte, v uint32) string {
	return string(sigil) + strconv.FormatUint(uint64(v), 10)
}

func parseID(s string, sigil byte, desc, intent string) (uint32, error) {
	if len(s) < 2 || s[0] != sigil {
		return 0, &ParseError{Desc: desc, Intent: intent, Input: s}
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, &ParseError{Desc: desc, Intent: intent, Input: s}
		}
	}
	v, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil {
		return 0, &ParseError{Desc: desc, Intent: intent, Input: s, Err: err}
	}
	return uint32(v), nil
}
