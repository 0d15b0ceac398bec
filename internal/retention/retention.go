// Package retention decides which backups to keep.
package retention

import (
	"fmt"
	"strings"
	"time"
)

// Backup is an archive file and the time it was created.
type Backup struct {
	Path      string
	CreatedAt time.Time
}

type Status int

const (
	Retainable Status = iota
	Purgeable
)

func (s Status) String() string {
	switch s {
	case Retainable:
		return "retainable"
	case Purgeable:
		return "purgeable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus accepts the names printed by Status.String.
func ParseStatus(name string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "retainable":
		return Retainable, nil
	case "purgeable":
		return Purgeable, nil
	default:
		return 0, fmt.Errorf("unknown backup status %q", name)
	}
}

type BackupStatus struct {
	Backup
	Status Status
}

// Plan splits a list of backups. Statuses follows the order of the input.
type Plan struct {
	Retainable []Backup
	Purgeable  []Backup
	Statuses   []BackupStatus
}

// Strategy plans over backups sorted oldest to newest. Planning never
// fails and never reorders.
type Strategy interface {
	Plan(backups []Backup, now time.Time) Plan
	String() string
}

const (
	MostRecentName = "most-recent"
	ClassicName    = "classic"
)

// ParseStrategy builds a strategy from its configuration name. k is only
// used by most-recent.
func ParseStrategy(name string, k int) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case MostRecentName, "":
		if k < 0 {
			return nil, fmt.Errorf("most-recent: negative count %d", k)
		}
		return MostRecent(k), nil
	case ClassicName:
		return Classic(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want %s or %s)", name, MostRecentName, ClassicName)
	}
}

type mostRecent struct{ k int }

// MostRecent keeps the k newest backups.
func MostRecent(k int) Strategy { return mostRecent{k: k} }

func (s mostRecent) String() string { return fmt.Sprintf("KeepMostRecent: %d", s.k) }

func (s mostRecent) Plan(backups []Backup, _ time.Time) Plan {
	k := min(len(backups), max(s.k, 0))
	split := len(backups) - k
	keep := make([]bool, len(backups))
	for i := split; i < len(backups); i++ {
		keep[i] = true
	}
	return build(backups, keep)
}

func build(backups []Backup, keep []bool) Plan {
	p := Plan{
		Retainable: []Backup{},
		Purgeable:  []Backup{},
		Statuses:   make([]BackupStatus, 0, len(backups)),
	}
	for i, b := range backups {
		status := Purgeable
		if keep[i] {
			status = Retainable
			p.Retainable = append(p.Retainable, b)
		} else {
			p.Purgeable = append(p.Purgeable, b)
		}
		p.Statuses = append(p.Statuses, BackupStatus{Backup: b, Status: status})
	}
	return p
}
