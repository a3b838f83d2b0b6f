package cachez

import (
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	createTempFile = os.CreateTemp
	renameFile     = os.Rename
)

type fileBackend struct {
	dir string
}

// NewFileBackend stores entries as files in dir. An empty dir follows
// GetPersistFolder at call time, so SetPersistFolder takes effect immediately.
//
// Example: pin persisted results to a folder
//
//	backend := cachez.NewFileBackend("/var/cache/app")
//	fmt.Println(backend.Driver()) // file
func NewFileBackend(dir string) Backend {
	return &fileBackend{dir: dir}
}

func (b *fileBackend) Driver() Driver { return DriverFile }

func (b *fileBackend) folder() (string, error) {
	dir := b.dir
	if dir == "" {
		dir = GetPersistFolder()
	}
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	Logger().Debug("persist folder created", "path", dir)
	return dir, nil
}

func (b *fileBackend) Load(_ context.Context, name string) (Entry, bool, error) {
	dir, err := b.folder()
	if err != nil {
		return Entry{}, false, err
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Blob: data, ModTime: info.ModTime()}, true, nil
}

// Save writes through a temp file in the same folder and renames it over the
// target, so readers see either the old blob or the new one.
func (b *fileBackend) Save(_ context.Context, name string, blob []byte) error {
	dir, err := b.folder()
	if err != nil {
		return err
	}
	tmp, err := createTempFile(dir, ".cachez-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := renameFile(tmpPath, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (b *fileBackend) Delete(_ context.Context, name string) error {
	dir, err := b.folder()
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (b *fileBackend) Flush(ctx context.Context) error {
	dir := b.dir
	if dir == "" {
		dir = GetPersistFolder()
	}
	_, err := PurgePersisted(ctx, dir)
	return err
}

// EntryInfo describes one persisted file.
type EntryInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Age reports how old the entry is relative to now.
func (e EntryInfo) Age(now time.Time) time.Duration {
	return now.Sub(e.ModTime)
}

// ListPersisted returns the entries in folder, oldest first. Files that are
// not named like persisted entries are ignored. A missing folder is empty.
func ListPersisted(ctx context.Context, folder string) ([]EntryInfo, error) {
	dirEntries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]EntryInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !de.Type().IsRegular() || !isEntryName(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, EntryInfo{
			Name:    de.Name(),
			Path:    filepath.Join(folder, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// PrunePersisted deletes entries in folder older than maxAge and reports how
// many were removed.
func PrunePersisted(ctx context.Context, folder string, maxAge time.Duration) (int, error) {
	entries, err := ListPersisted(ctx, folder)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.Age(now) <= maxAge {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// PurgePersisted deletes every entry in folder and reports how many were removed.
func PurgePersisted(ctx context.Context, folder string) (int, error) {
	entries, err := ListPersisted(ctx, folder)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// isEntryName matches "<sha256 hex>.<ext>".
func isEntryName(name string) bool {
	const digestLen = 64
	if len(name) < digestLen+2 || name[digestLen] != '.' {
		return false
	}
	if strings.ContainsAny(name[digestLen+1:], `/\`) {
		return false
	}
	_, err := hex.DecodeString(name[:digestLen])
	return err == nil
}
