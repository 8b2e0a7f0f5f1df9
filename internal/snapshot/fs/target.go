// Package fs stores snapshots as files in a local directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gezibash/arc-registrar/internal/snapshot"
	"github.com/gezibash/arc-registrar/internal/storage"
)

// TargetName is the registered target name.
const TargetName = "file"

func init() {
	snapshot.Register(TargetName, factory, defaults)
}

func defaults() map[string]string {
	return map[string]string{
		"dir_permissions":  "0700",
		"file_permissions": "0600",
	}
}

func factory(_ context.Context, config map[string]string) (snapshot.Target, error) {
	p := storage.Read(TargetName, config)
	path := p.Required("path")
	dirPerm := fileMode(p, "dir_permissions", 0o700)
	filePerm := fileMode(p, "file_permissions", 0o600)
	if err := p.Err(); err != nil {
		return nil, err
	}
	return New(storage.ExpandPath(path), dirPerm, filePerm)
}

func fileMode(p *storage.Params, key string, def iofs.FileMode) iofs.FileMode {
	v := p.String(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 8, 32)
	if err != nil || n > 0o777 {
		p.Fail(key, "must be an octal file mode (e.g., 0700)", err)
		return def
	}
	return iofs.FileMode(n)
}

// Target keeps one file per snapshot in dir.
type Target struct {
	dir      string
	filePerm iofs.FileMode
	closed   atomic.Bool
}

// New creates a file target rooted at dir.
func New(dir string, dirPerm, filePerm iofs.FileMode) (*Target, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("fs: create snapshot dir: %w", err)
	}
	return &Target{dir: dir, filePerm: filePerm}, nil
}

func (t *Target) check(name string) error {
	if t.closed.Load() {
		return snapshot.ErrClosed
	}
	return snapshot.ValidName(name)
}

// Put writes r to name atomically via a temp file.
func (t *Target) Put(_ context.Context, name string, r io.Reader) (int64, error) {
	if err := t.check(name); err != nil {
		return 0, err
	}
	path := filepath.Join(t.dir, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, t.filePerm)
	if err != nil {
		return 0, fmt.Errorf("fs: create temp: %w", err)
	}
	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("fs: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("fs: rename: %w", err)
	}
	return n, nil
}

// Get opens the named snapshot.
func (t *Target) Get(_ context.Context, name string) (io.ReadCloser, error) {
	if err := t.check(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(t.dir, name))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", snapshot.ErrNotFound, name)
		}
		return nil, fmt.Errorf("fs: open: %w", err)
	}
	return f, nil
}

// List returns the stored snapshots sorted by name.
func (t *Target) List(_ context.Context) ([]snapshot.Object, error) {
	if t.closed.Load() {
		return nil, snapshot.ErrClosed
	}
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("fs: read dir: %w", err)
	}
	var out []snapshot.Object
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, snapshot.Object{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	slices.SortFunc(out, func(a, b snapshot.Object) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Close marks the target closed.
func (t *Target) Close() error {
	t.closed.Store(true)
	return nil
}
