// Package archive reads and writes backup files: a zstd compressed tar
// holding a version marker, the snapshot as JSON and the captured content of
// every pane.
package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/alchemmist/tmux-backup/internal/snapshot"
	"github.com/alchemmist/tmux-backup/internal/tmux"
)

const (
	VersionFile  = "version"
	MetadataFile = "metadata.json"
	PanesDir     = "panes-content"

	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

var (
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrMissingMetadata    = errors.New("archive has no metadata")
)

// PaneFile is the name of the content file of a pane inside PanesDir.
func PaneFile(id tmux.PaneID) string {
	return "pane-" + id.String() + ".txt"
}

// PaneContentPath is where Unpack puts the content of a pane.
func PaneContentPath(dir string, id tmux.PaneID) string {
	return filepath.Join(dir, PanesDir, PaneFile(id))
}

// Write stores snap and the pane contents at path. The archive is built
// next to path and renamed into place, so a reader never sees half a file.
func Write(path string, snap snapshot.Snapshot, panes map[tmux.PaneID][]byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return err
	}
	meta, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	tw := tar.NewWriter(enc)
	now := time.Now()

	if err := writeEntry(tw, VersionFile, []byte(snapshot.FormatVersion), now); err != nil {
		return err
	}
	if err := writeEntry(tw, MetadataFile, meta, now); err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:     PanesDir + "/",
		Typeflag: tar.TypeDir,
		Mode:     defaultDirPerm,
		ModTime:  now,
	}); err != nil {
		return err
	}

	ids := make([]tmux.PaneID, 0, len(panes))
	for id := range panes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := writeEntry(tw, PanesDir+"/"+PaneFile(id), panes[id], now); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeEntry(tw *tar.Writer, name string, data []byte, mtime time.Time) error {
	hdr := &tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     defaultFilePerm,
		Size:     int64(len(data)),
		ModTime:  mtime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadMetadata returns the snapshot stored in the archive at path. It fails
// with ErrUnsupportedVersion or ErrMissingMetadata on archives it cannot
// use.
func ReadMetadata(path string) (snapshot.Snapshot, error) {
	var version, meta []byte
	err := walk(path, func(hdr *tar.Header, r io.Reader) error {
		var err error
		switch hdr.Name {
		case VersionFile:
			version, err = io.ReadAll(r)
		case MetadataFile:
			meta, err = io.ReadAll(r)
		}
		return err
	})
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	v := strings.TrimSpace(string(version))
	if v != snapshot.FormatVersion {
		if version == nil {
			return snapshot.Snapshot{}, fmt.Errorf("%s: %w: no version marker", path, ErrUnsupportedVersion)
		}
		return snapshot.Snapshot{}, fmt.Errorf("%s: %w %q", path, ErrUnsupportedVersion, v)
	}
	if len(bytes.TrimSpace(meta)) == 0 {
		return snapshot.Snapshot{}, fmt.Errorf("%s: %w", path, ErrMissingMetadata)
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(meta, &snap); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%s: decode metadata: %w", path, err)
	}
	return snap, nil
}

// Unpack extracts the archive at path into dir.
func Unpack(path, dir string) error {
	root := filepath.Clean(dir)
	return walk(path, func(hdr *tar.Header, r io.Reader) error {
		dest := filepath.Join(root, hdr.Name)
		if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return fmt.Errorf("%s: entry %q escapes the destination", path, hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			return os.MkdirAll(dest, defaultDirPerm)
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), defaultDirPerm); err != nil {
				return err
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, r); err != nil {
				_ = out.Close()
				return err
			}
			return out.Close()
		default:
			return nil
		}
	})
}

func walk(path string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
