package retention

import (
	"time"
)

const day = 24 * time.Hour

type classic struct{}

// Classic keeps a decaying history: the newest backup of each hour over the
// last day, of each day over the last week, of each ISO week over the last
// four weeks and of each month over the last year. At most 43 backups are
// kept whatever the input.
func Classic() Strategy { return classic{} }

func (classic) String() string { return "Classic" }

// tier is the half-open window (from, to] bucketed by key, except the most
// recent tier which also includes its lower bound. Calendar units can
// straddle a window edge, so max caps the buckets a tier keeps.
type tier struct {
	from, to time.Time
	closed   bool
	max      int
	key      func(time.Time) bucket
}

type bucket struct{ a, b int }

func (t tier) contains(ts time.Time) bool {
	if ts.After(t.to) {
		return false
	}
	if t.closed {
		return !ts.Before(t.from)
	}
	return ts.After(t.from)
}

func (classic) Plan(backups []Backup, now time.Time) Plan {
	tiers := []tier{
		{from: now.Add(-day), to: now, closed: true, max: 23, key: hourKey},
		{from: now.Add(-7 * day), to: now.Add(-day), max: 6, key: dayKey},
		{from: now.Add(-28 * day), to: now.Add(-7 * day), max: 3, key: weekKey},
		{from: now.Add(-365 * day), to: now.Add(-28 * day), max: 11, key: monthKey},
	}
	loc := now.Location()

	// a backup on the edge of two windows belongs to the more recent one
	owner := make([]int, len(backups))
	for i, b := range backups {
		owner[i] = -1
		for ti, t := range tiers {
			if t.contains(b.CreatedAt) {
				owner[i] = ti
				break
			}
		}
	}

	keep := make([]bool, len(backups))
	for ti, t := range tiers {
		kept := 0
		seen := map[bucket]bool{}
		// newest first, so the first backup met in a bucket is the one kept
		for i := len(backups) - 1; i >= 0 && kept < t.max; i-- {
			if owner[i] != ti {
				continue
			}
			k := t.key(backups[i].CreatedAt.In(loc))
			if seen[k] {
				continue
			}
			seen[k] = true
			keep[i] = true
			kept++
		}
	}
	return build(backups, keep)
}

func hourKey(t time.Time) bucket {
	return bucket{a: t.YearDay() + t.Year()*1000, b: t.Hour()}
}

func dayKey(t time.Time) bucket {
	return bucket{a: t.Year(), b: t.YearDay()}
}

func weekKey(t time.Time) bucket {
	y, w := t.ISOWeek()
	return bucket{a: y, b: w}
}

func monthKey(t time.Time) bucket {
	return bucket{a: t.Year(), b: int(t.Month())}
}
