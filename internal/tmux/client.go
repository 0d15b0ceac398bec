package tmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrUnexpectedOutput is wrapped by *UnexpectedOutputError.
var ErrUnexpectedOutput = errors.New("unexpected output from tmux")

// ErrNoDefaultCommand is returned when tmux reports neither a
// default-command nor a default-shell.
var ErrNoDefaultCommand = errors.New("tmux has no default-command or default-shell")

// CommandError is a tmux invocation that could not run or exited non-zero.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("tmux %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// UnexpectedOutputError is a command that should print nothing but did.
type UnexpectedOutputError struct {
	Args   []string
	Output string
}

func (e *UnexpectedOutputError) Error() string {
	return fmt.Sprintf("tmux %s: unexpected output %q", strings.Join(e.Args, " "), e.Output)
}

func (e *UnexpectedOutputError) Unwrap() error { return ErrUnexpectedOutput }

// IsNoServer reports whether err says that no tmux server is running.
func IsNoServer(err error) bool {
	var cerr *CommandError
	if !errors.As(err, &cerr) {
		return false
	}
	return strings.Contains(cerr.Stderr, "no server running") ||
		strings.Contains(cerr.Stderr, "error connecting to")
}

// Client runs the tmux binary. Every method maps to one tmux invocation.
type Client struct {
	bin    string
	socket string
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSocket targets the server listening on the given socket path (-S).
func WithSocket(path string) Option {
	return func(c *Client) { c.socket = path }
}

// WithLogger logs every invocation at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(bin string, opts ...Option) *Client {
	if strings.TrimSpace(bin) == "" {
		bin = "tmux"
	}
	c := &Client{bin: bin, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Output runs tmux and returns its stdout.
func (c *Client) Output(ctx context.Context, args ...string) (string, error) {
	argv := args
	if c.socket != "" {
		argv = append([]string{"-S", c.socket}, args...)
	}
	c.log.Debug("tmux", zap.Strings("args", argv))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

// silent runs a command tmux documents as printing nothing.
func (c *Client) silent(ctx context.Context, args ...string) error {
	out, err := c.Output(ctx, args...)
	if err != nil {
		return err
	}
	if out != "" {
		return &UnexpectedOutputError{Args: args, Output: out}
	}
	return nil
}

func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	out, err := c.Output(ctx, "list-sessions", "-F", SessionFormat)
	if err != nil {
		if IsNoServer(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseLines(out, ParseSession)
}

func (c *Client) ListWindows(ctx context.Context) ([]Window, error) {
	out, err := c.Output(ctx, "list-windows", "-a", "-F", WindowFormat)
	if err != nil {
		if IsNoServer(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseLines(out, ParseWindow)
}

func (c *Client) ListPanes(ctx context.Context) ([]Pane, error) {
	out, err := c.Output(ctx, "list-panes", "-a", "-F", PaneFormat)
	if err != nil {
		if IsNoServer(err) {
			return nil, nil
		}
		return nil, err
	}
	return parseLines(out, ParsePane)
}

// CurrentClient returns the focus of the client tmux considers current. With
// no client attached, or no server, the focus is empty.
func (c *Client) CurrentClient(ctx context.Context) (ClientFocus, error) {
	out, err := c.Output(ctx, "display-message", "-p", "-F", ClientFormat)
	if err != nil {
		if IsNoServer(err) {
			return ClientFocus{}, nil
		}
		return ClientFocus{}, err
	}
	lines := splitLines(out)
	if len(lines) == 0 {
		return ClientFocus{}, nil
	}
	if len(lines) != 1 {
		return ClientFocus{}, &ParseError{Desc: "ClientFocus", Intent: ClientFormat, Input: out}
	}
	return ParseClientFocus(lines[0])
}

// SessionNames returns the sorted names of the sessions on the server, or
// nothing when no server is running.
func (c *Client) SessionNames(ctx context.Context) ([]string, error) {
	out, err := c.Output(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if IsNoServer(err) {
			return nil, nil
		}
		return nil, err
	}
	names := splitLines(out)
	sort.Strings(names)
	return names, nil
}

// CapturePane returns the whole history of a pane, escape sequences
// included and wrapped lines joined.
func (c *Client) CapturePane(ctx context.Context, pane PaneID) ([]byte, error) {
	out, err := c.Output(ctx, "capture-pane", "-t", pane.String(), "-J", "-e", "-p", "-S", "-", "-E", "-")
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// NewSession creates a detached session and returns the ids of the session,
// of its first window and of the pane in it.
func (c *Client) NewSession(ctx context.Context, name, windowName, dir, command string) (SessionID, WindowID, PaneID, error) {
	args := []string{"new-session", "-d", "-P", "-F", "#{session_id}:#{window_id}:#{pane_id}", "-s", name, "-n", windowName}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if command != "" {
		args = append(args, command)
	}
	out, err := c.Output(ctx, args...)
	if err != nil {
		return 0, 0, 0, err
	}
	line := strings.TrimSpace(out)
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return 0, 0, 0, &ParseError{Desc: "new-session", Intent: "#{session_id}:#{window_id}:#{pane_id}", Input: line}
	}
	sid, err := ParseSessionID(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	wid, err := ParseWindowID(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}
	pid, err := ParsePaneID(parts[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return sid, wid, pid, nil
}

// NewWindow appends a window to the session and returns the ids of the
// window and of its pane.
func (c *Client) NewWindow(ctx context.Context, session SessionID, windowName, dir, command string) (WindowID, PaneID, error) {
	args := []string{"new-window", "-d", "-P", "-F", "#{window_id}:#{pane_id}", "-t", session.String() + ":", "-n", windowName}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if command != "" {
		args = append(args, command)
	}
	out, err := c.Output(ctx, args...)
	if err != nil {
		return 0, 0, err
	}
	line := strings.TrimSpace(out)
	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return 0, 0, &ParseError{Desc: "new-window", Intent: "#{window_id}:#{pane_id}", Input: line}
	}
	wid, err := ParseWindowID(parts[0])
	if err != nil {
		return 0, 0, err
	}
	pid, err := ParsePaneID(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return wid, pid, nil
}

// SplitWindow adds a pane to the window and returns its id.
func (c *Client) SplitWindow(ctx context.Context, window WindowID, dir, command string) (PaneID, error) {
	args := []string{"split-window", "-h", "-P", "-F", "#{pane_id}", "-t", window.String()}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if command != "" {
		args = append(args, command)
	}
	out, err := c.Output(ctx, args...)
	if err != nil {
		return 0, err
	}
	return ParsePaneID(strings.TrimSpace(out))
}

func (c *Client) SelectLayout(ctx context.Context, window WindowID, descriptor string) error {
	return c.silent(ctx, "select-layout", "-t", window.String(), descriptor)
}

func (c *Client) SelectWindow(ctx context.Context, window WindowID) error {
	return c.silent(ctx, "select-window", "-t", window.String())
}

func (c *Client) SelectPane(ctx context.Context, pane PaneID) error {
	return c.silent(ctx, "select-pane", "-t", pane.String())
}

// SocketPath names the server the client talks to: the configured socket,
// else what the server reports, else "default".
func (c *Client) SocketPath(ctx context.Context) string {
	if c.socket != "" {
		return c.socket
	}
	out, err := c.Output(ctx, "display-message", "-p", "#{socket_path}")
	if err != nil {
		return "default"
	}
	if v := strings.TrimSpace(out); v != "" {
		return v
	}
	return "default"
}

// SwitchClient moves the attached client to the named session. Outside of
// tmux there is no client to move and it does nothing.
func (c *Client) SwitchClient(ctx context.Context, session string) error {
	if os.Getenv("TMUX") == "" {
		return nil
	}
	return c.silent(ctx, "switch-client", "-t", "="+session)
}

// StartServer makes sure a server is running by creating a detached session
// with the given name. An existing session of that name is fine.
func (c *Client) StartServer(ctx context.Context, placeholder string) error {
	err := c.silent(ctx, "new-session", "-d", "-s", placeholder)
	var cerr *CommandError
	if errors.As(err, &cerr) && strings.Contains(cerr.Stderr, "duplicate session") {
		return nil
	}
	return err
}

// HasSession reports whether a session with exactly this name exists.
func (c *Client) HasSession(ctx context.Context, name string) bool {
	_, err := c.Output(ctx, "has-session", "-t", "="+name)
	return err == nil
}

func (c *Client) KillSession(ctx context.Context, name string) error {
	return c.silent(ctx, "kill-session", "-t", "="+name)
}

// DefaultCommand returns the command tmux starts in new panes:
// default-command when set, default-shell otherwise.
func (c *Client) DefaultCommand(ctx context.Context) (string, error) {
	out, err := c.Output(ctx, "show-options", "-g")
	if err != nil {
		return "", err
	}
	var command, shell string
	for _, line := range splitLines(out) {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch key {
		case "default-command":
			command = value
		case "default-shell":
			shell = value
		}
	}
	switch {
	case command != "":
		return command, nil
	case shell != "":
		return shell, nil
	default:
		return "", ErrNoDefaultCommand
	}
}

// DisplayMessage shows msg in the status line of the current client.
func (c *Client) DisplayMessage(ctx context.Context, msg string) error {
	return c.silent(ctx, "display-message", msg)
}

// splitLines returns the non-blank lines of in, without line terminators.
func splitLines(in string) []string {
	s := bufio.NewScanner(strings.NewReader(in))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	out := make([]string, 0)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
