package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alchemmist/tmux-backup/internal/archive"
)

// Describe prints what the backup at path holds, session by session.
func Describe(w io.Writer, path string) error {
	snap, err := archive.ReadMetadata(path)
	if err != nil {
		return err
	}

	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	dim := r.NewStyle().Faint(true)

	var b strings.Builder
	fmt.Fprintf(&b, "Backup: `%s`\n", path)
	fmt.Fprintf(&b, "Version: %s\n", snap.Version)
	fmt.Fprintf(&b, "Content: %s\n", snap.Overview())
	if snap.Client.Current != "" {
		fmt.Fprintf(&b, "Client: %s (last: %s)\n", snap.Client.Current, orDash(snap.Client.Last))
	}

	for _, sess := range snap.Sessions {
		fmt.Fprintf(&b, "\n%s %s %s\n", title.Render(sess.Name), sess.ID, dim.Render(sess.Dir))
		for _, win := range snap.WindowsRelatedTo(sess) {
			fmt.Fprintf(&b, "  %d: %s%s %s\n", win.Index, win.Name, activeMark(win.Active), dim.Render(win.Layout))
			panes, err := snap.PanesRelatedTo(win)
			if err != nil {
				return err
			}
			for _, p := range panes {
				fmt.Fprintf(&b, "    %s %s%s %s\n", p.ID, p.Command, activeMark(p.Active), dim.Render(p.Dir))
			}
		}
	}
	_, err = io.WriteString(w, b.String())
	return err
}

func activeMark(active bool) string {
	if active {
		return " *"
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
