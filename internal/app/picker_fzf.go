package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SelectWithFZF is SelectWithTUI through fzf.
func (a *App) SelectWithFZF(ctx context.Context) (string, error) {
	entries, err := a.pickerEntries(ctx)
	if err != nil {
		return "", err
	}
	return chooseBackupFZF(ctx, entries)
}

func chooseBackupFZF(ctx context.Context, entries []pickerEntry) (string, error) {
	var input bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&input, "%s\t%s\t%s\t%s\t%s\n", e.detail.Path, e.name(), e.age, e.status, e.content())
	}

	cmd := exec.CommandContext(ctx, "fzf", "--prompt", "tmux-backup> ", "--delimiter", "\t", "--with-nth", "2,3,4,5", "--height", "100%", "--layout", "reverse")
	cmd.Stdin = &input
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("fzf selection canceled or failed: %w", err)
	}

	selected := strings.TrimSpace(string(out))
	if selected == "" {
		return "", ErrNothingSelected
	}
	path, _, _ := strings.Cut(selected, "\t")
	return path, nil
}
