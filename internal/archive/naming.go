package archive

import (
	"path/filepath"
	"regexp"
	"time"
)

const timestampLayout = "20060102T150405.000000"

var backupName = regexp.MustCompile(`^backup-(\d{8}T\d{6}\.\d{6})\.tar\.zst$`)

// NewBackupPath returns the path of a backup created at t in dir.
func NewBackupPath(dir string, t time.Time) string {
	return filepath.Join(dir, "backup-"+t.Format(timestampLayout)+".tar.zst")
}

// ParseBackupPath returns the creation time encoded in a backup file name,
// read in loc. ok is false for names NewBackupPath does not produce.
func ParseBackupPath(path string, loc *time.Location) (t time.Time, ok bool) {
	m := backupName.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timestampLayout, m[1], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
