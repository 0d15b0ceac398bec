package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/alchemmist/tmux-backup/internal/catalog"
	"github.com/alchemmist/tmux-backup/internal/retention"
)

var (
	ErrSelectionCanceled = errors.New("selection canceled")
	ErrNothingSelected   = errors.New("no backup selected")
)

// pickerEntry is a backup as shown by the pickers.
type pickerEntry struct {
	detail catalog.Detail
	status retention.Status
	age    string
}

func (e pickerEntry) name() string { return filepath.Base(e.detail.Path) }

func (e pickerEntry) content() string {
	if e.detail.Err != nil {
		return "unreadable"
	}
	return e.detail.Overview.String()
}

// pickerEntries lists the backups of the catalog, newest first.
func (a *App) pickerEntries(ctx context.Context) ([]pickerEntry, error) {
	now := a.now()
	plan := a.catalog.Plan(now)
	if len(plan.Statuses) == 0 {
		return nil, fmt.Errorf("no backups found in %s", a.catalog.Dir())
	}

	backups := make([]retention.Backup, len(plan.Statuses))
	for i, s := range plan.Statuses {
		backups[i] = s.Backup
	}
	details := catalog.Details(ctx, backups, a.cfg.Parallelism)

	entries := make([]pickerEntry, len(details))
	for i, d := range details {
		entries[len(details)-1-i] = pickerEntry{
			detail: d,
			status: plan.Statuses[i].Status,
			age:    humanize.RelTime(d.CreatedAt, now, "ago", "from now"),
		}
	}
	return entries, nil
}

// SelectWithTUI lets the user pick a backup and returns its path.
func (a *App) SelectWithTUI(ctx context.Context) (string, error) {
	entries, err := a.pickerEntries(ctx)
	if err != nil {
		return "", err
	}
	return chooseBackup(entries)
}

type pickerRow struct {
	entry pickerEntry
	score int
}

type pickerModel struct {
	allRows    []pickerRow
	visible    []pickerRow
	queryInput textinput.Model
	table      table.Model
	header     lipgloss.Style
	selected   string
	cancelled  bool
	width      int
	height     int
}

func newPickerModel(entries []pickerEntry) pickerModel {
	input := textinput.New()
	input.Placeholder = "fuzzy search"
	input.Prompt = "query> "
	input.Focus()

	cols := []table.Column{
		{Title: "BACKUP", Width: 40},
		{Title: "AGE", Width: 16},
		{Title: "STATUS", Width: 11},
		{Title: "CONTENT", Width: 30},
	}

	tbl := table.New(
		table.WithColumns(cols),
		table.WithRows(nil),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	m := pickerModel{
		queryInput: input,
		table:      tbl,
		header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		allRows:    make([]pickerRow, 0, len(entries)),
	}
	for _, e := range entries {
		m.allRows = append(m.allRows, pickerRow{entry: e})
	}
	m.applyFilter()
	return m
}

func (m pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if len(m.visible) == 0 {
				return m, nil
			}
			idx := m.table.Cursor()
			if idx >= 0 && idx < len(m.visible) {
				m.selected = m.visible[idx].entry.detail.Path
				return m, tea.Quit
			}
		}
	}

	prevQuery := m.queryInput.Value()
	var cmdInput tea.Cmd
	m.queryInput, cmdInput = m.queryInput.Update(msg)
	if prevQuery != m.queryInput.Value() {
		m.applyFilter()
	}

	var cmdTable tea.Cmd
	m.table, cmdTable = m.table.Update(msg)

	return m, tea.Batch(cmdInput, cmdTable)
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(m.header.Render("tmux-backup"))
	b.WriteString("\n")
	b.WriteString("enter: restore  esc/ctrl-c: cancel  up/down: move\n\n")
	b.WriteString(m.queryInput.View())
	b.WriteString("\n\n")
	if len(m.visible) == 0 {
		b.WriteString("No backups match query\n")
		return b.String()
	}
	b.WriteString(m.table.View())
	return b.String()
}

func (m *pickerModel) resize() {
	if m.width <= 0 {
		return
	}
	contentW := m.width - 75
	if contentW < 16 {
		contentW = 16
	}
	cols := m.table.Columns()
	if len(cols) == 4 {
		cols[3].Width = contentW
		m.table.SetColumns(cols)
	}

	tableHeight := m.height - 7
	if tableHeight < 5 {
		tableHeight = 5
	}
	m.table.SetHeight(tableHeight)
}

func (m *pickerModel) applyFilter() {
	query := strings.TrimSpace(strings.ToLower(m.queryInput.Value()))
	rows := make([]pickerRow, 0, len(m.allRows))

	for _, row := range m.allRows {
		e := row.entry
		target := strings.ToLower(fmt.Sprintf("%s %s %s %s", e.name(), e.age, e.status, e.content()))
		score, ok := fuzzyScore(query, target)
		if !ok {
			continue
		}
		row.score = score
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score == rows[j].score {
			return rows[i].entry.detail.CreatedAt.After(rows[j].entry.detail.CreatedAt)
		}
		return rows[i].score > rows[j].score
	})

	m.visible = rows
	tableRows := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		e := row.entry
		tableRows = append(tableRows, table.Row{
			trim(e.name(), 80),
			e.age,
			e.status.String(),
			e.content(),
		})
	}
	m.table.SetRows(tableRows)

	if len(tableRows) == 0 {
		m.table.SetCursor(0)
		return
	}
	if m.table.Cursor() >= len(tableRows) {
		m.table.SetCursor(len(tableRows) - 1)
	}
}

func fuzzyScore(query, target string) (int, bool) {
	if query == "" {
		return 1, true
	}
	qi := 0
	score := 0
	streak := 0
	for i := 0; i < len(target) && qi < len(query); i++ {
		if target[i] == query[qi] {
			score += 10 + streak*3
			streak++
			qi++
		} else {
			streak = 0
		}
	}
	if qi != len(query) {
		return 0, false
	}
	return score, true
}

func trim(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func chooseBackup(entries []pickerEntry) (string, error) {
	m := newPickerModel(entries)
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(pickerModel)
	if !ok {
		return "", fmt.Errorf("unexpected picker model type")
	}
	return result.choice()
}

func (m pickerModel) choice() (string, error) {
	if m.cancelled {
		return "", ErrSelectionCanceled
	}
	if strings.TrimSpace(m.selected) == "" {
		return "", ErrNothingSelected
	}
	return m.selected, nil
}
