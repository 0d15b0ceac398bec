package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemmist/tmux-backup/internal/snapshot"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

func sampleSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		Version:  snapshot.FormatVersion,
		Client:   tmux.ClientFocus{Current: "dev", Last: "ops"},
		Sessions: []tmux.Session{{ID: 1, Name: "dev", Dir: "/src"}},
		Windows:  []tmux.Window{{ID: 2, Index: 0, Active: true, Layout: "64ef,334x85,0,0,10", Name: "editor", Sessions: []string{"dev"}}},
		Panes:    []tmux.Pane{{ID: 10, Index: 0, Active: true, Title: "host", Command: "nvim", Dir: "/src"}},
	}
}

// writeRaw builds an archive from arbitrary entries, in order.
func writeRaw(t *testing.T, path string, entries ...[2]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e[0], Mode: 0o644, Size: int64(len(e[1])), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestWriteReadUnpack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "backup.tar.zst")
	snap := sampleSnapshot()
	panes := map[tmux.PaneID][]byte{
		10: []byte("$ make\nok\n"),
		11: []byte("second"),
	}

	require.NoError(t, Write(path, snap, panes))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	out := t.TempDir()
	require.NoError(t, Unpack(path, out))
	b, err := os.ReadFile(PaneContentPath(out, 10))
	require.NoError(t, err)
	assert.Equal(t, "$ make\nok\n", string(b))
	b, err = os.ReadFile(PaneContentPath(out, 11))
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	v, err := os.ReadFile(filepath.Join(out, VersionFile))
	require.NoError(t, err)
	assert.Equal(t, "1.0", string(v))
}

func TestPaneFile(t *testing.T) {
	assert.Equal(t, "pane-%7.txt", PaneFile(7))
}

func TestReadMetadataVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.tar.zst")
	writeRaw(t, path, [2]string{VersionFile, "0.9"}, [2]string{MetadataFile, "{}"})

	_, err := ReadMetadata(path)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, ErrMissingMetadata)
	assert.Contains(t, err.Error(), `"0.9"`)
}

func TestReadMetadataWithoutVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.tar.zst")
	writeRaw(t, path, [2]string{MetadataFile, "{}"})

	_, err := ReadMetadata(path)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadMetadataMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tar.zst")
	writeRaw(t, path, [2]string{VersionFile, "1.0"}, [2]string{PanesDir + "/pane-%1.txt", "x"})

	_, err := ReadMetadata(path)
	require.ErrorIs(t, err, ErrMissingMetadata)
	assert.NotErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadMetadataNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.tar.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd at all"), 0o644))

	_, err := ReadMetadata(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, ErrMissingMetadata)
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evil.tar.zst")
	writeRaw(t, path, [2]string{"../evil", "x"})

	err := Unpack(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestBackupPathRoundTrip(t *testing.T) {
	created := time.Date(2024, time.June, 15, 12, 30, 5, 123456000, time.UTC)
	path := NewBackupPath("/backups", created)
	assert.Equal(t, "/backups/backup-20240615T123005.123456.tar.zst", path)

	got, ok := ParseBackupPath(path, time.UTC)
	require.True(t, ok)
	assert.True(t, created.Equal(got))
}

func TestParseBackupPathRejectsOtherFiles(t *testing.T) {
	for _, name := range []string{
		"backup-20240615T123005.tar.zst",
		"backup-20240615T123005.123456.tar.zst.tmp",
		"backup-20240615T123005.123456.tar.gz",
		"notes.txt",
		"backup-20241315T123005.123456.tar.zst",
	} {
		_, ok := ParseBackupPath(name, time.UTC)
		assert.False(t, ok, name)
	}
}
