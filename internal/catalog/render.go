package catalog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/alchemmist/tmux-backup/internal/retention"
)

type ListOptions struct {
	// Details adds size, format version and content of every backup.
	Details bool
	// Only prints the paths of the backups with that status, like FilePaths.
	Only *retention.Status
	// FilePaths prints bare paths, one per line.
	FilePaths bool
	// Home is replaced by $HOME in the displayed location.
	Home        string
	Parallelism int
}

// List writes the catalog to w, newest backup last.
func (c *Catalog) List(ctx context.Context, w io.Writer, now time.Time, opts ListOptions) error {
	plan := c.Plan(now)

	if opts.FilePaths || opts.Only != nil {
		backups := c.Backups()
		if opts.Only != nil {
			backups = plan.Retainable
			if *opts.Only == retention.Purgeable {
				backups = plan.Purgeable
			}
		}
		for _, b := range backups {
			if _, err := fmt.Fprintln(w, b.Path); err != nil {
				return err
			}
		}
		return nil
	}

	r := lipgloss.NewRenderer(w)
	styles := map[retention.Status]lipgloss.Style{
		retention.Retainable: r.NewStyle().Foreground(lipgloss.Color("2")),
		retention.Purgeable:  r.NewStyle().Foreground(lipgloss.Color("3")),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Strategy: %s\n", c.strategy)
	fmt.Fprintf(&b, "Location: `%s`\n\n", displayDir(c.dir, opts.Home))

	var details []Detail
	if opts.Details {
		backups := make([]retention.Backup, len(plan.Statuses))
		for i, s := range plan.Statuses {
			backups[i] = s.Backup
		}
		details = Details(ctx, backups, opts.Parallelism)
		fmt.Fprintf(&b, "%4s %-32s %-14s %-12s %-10s %-8s %s\n", "", "NAME", "AGE", "STATUS", "FILESIZE", "VERSION", "CONTENT")
	} else {
		fmt.Fprintf(&b, "%4s %-32s %-14s %s\n", "", "NAME", "AGE", "STATUS")
	}

	for i, s := range plan.Statuses {
		index := len(plan.Statuses) - i
		style := styles[s.Status]
		name := style.Render(fmt.Sprintf("%-32s", filepath.Base(s.Path)))
		age := humanize.RelTime(s.CreatedAt, now, "ago", "from now")
		status := style.Render(fmt.Sprintf("%-12s", s.Status))

		if !opts.Details {
			fmt.Fprintf(&b, "%3d. %s %-14s %s\n", index, name, age, strings.TrimRight(status, " "))
			continue
		}
		d := details[i]
		size, version, content := "?", "?", "unreadable: "+errText(d.Err)
		if d.Err == nil {
			size = humanize.Bytes(uint64(d.Size))
			version = d.Overview.Version
			content = d.Overview.String()
		}
		fmt.Fprintf(&b, "%3d. %s %-14s %s %-10s %-8s %s\n", index, name, age, status, size, version, content)
	}

	fmt.Fprintf(&b, "\n%d backups: %d retainable, %d purgeable\n", len(plan.Statuses), len(plan.Retainable), len(plan.Purgeable))
	_, err := io.WriteString(w, b.String())
	return err
}

func displayDir(dir, home string) string {
	if home == "" {
		return dir
	}
	rel, err := filepath.Rel(home, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return dir
	}
	return filepath.Join("$HOME", rel)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
