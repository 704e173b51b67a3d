package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

// fileExt is appended to the last key segment to form the file name.
const fileExt = ".json"

// FileStore is the filesystem backend. Every key segment but the last is a
// directory and the last is a "<segment>.json" file, so record keys
// "namespace:agent:action" become <base>/namespace/agent/action.json: one
// directory per agent, one file per action.
//
// There is no native expiry; Set ignores its ttl and only an explicit sweep
// removes entries.
type FileStore struct {
	fs     afero.Fs
	base   string
	closed atomic.Bool
}

// NewFileStore creates a FileStore rooted at baseDir on fsys, creating the
// directory if needed. Use afero.NewOsFs() in production and
// afero.NewMemMapFs() in tests.
func NewFileStore(fsys afero.Fs, baseDir string) (*FileStore, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if baseDir == "" {
		return nil, errors.NewValidationError("file store directory is required").WithField("store.file.dir")
	}
	if err := fsys.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.NewStoreError("init", err).WithBackend(BackendFile).WithKey(baseDir)
	}
	return &FileStore{fs: fsys, base: filepath.Clean(baseDir)}, nil
}

// Dir returns the base directory of the store.
func (s *FileStore) Dir() string {
	return s.base
}

// Set implements Store. The value is written to a temporary file in the
// target directory and renamed into place, so readers never see a partial
// record.
func (s *FileStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if err := s.check(key); err != nil {
		return err
	}

	target := s.pathFor(key)
	dir := filepath.Dir(target)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return s.storeErr("set", key, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return s.storeErr("set", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return s.storeErr("set", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return s.storeErr("set", key, err)
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName) // best-effort cleanup
		return s.storeErr("set", key, err)
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storeErr("get", key, err)
	}
	return data, nil
}

// Delete implements Store. Empty agent directories are left in place.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	err := s.fs.Remove(s.pathFor(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return s.storeErr("delete", key, err)
	}
	return nil
}

// Scan implements Store. The walk starts at the deepest directory fully
// named by prefix and skips temporary files left by in-flight writes.
func (s *FileStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	segments := SplitKey(prefix)
	root := filepath.Join(append([]string{s.base}, segments[:len(segments)-1]...)...)
	if _, err := s.fs.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, s.storeErr("scan", prefix, err)
	}

	var entries []Entry
	walkErr := afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Entries removed mid-walk by a concurrent delete are not errors.
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key, ok := s.keyFor(path)
		if !ok || !strings.HasPrefix(key, prefix) {
			return nil
		}
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		entries = append(entries, Entry{Key: key, Value: data})
		return nil
	})
	if walkErr != nil {
		return nil, s.storeErr("scan", prefix, walkErr)
	}
	return entries, nil
}

// Watch implements Watcher using fsnotify on the key's directory. Only the
// OS filesystem produces notifications; other afero filesystems return
// ErrWatchUnsupported.
func (s *FileStore) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return nil, ErrWatchUnsupported
	}

	target := s.pathFor(key)
	dir := filepath.Dir(target)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, s.storeErr("watch", key, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, s.storeErr("watch", key, err)
	}
	// fsnotify is reliable on directories; renames into place show up as
	// Create events on the target name.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, s.storeErr("watch", key, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Store. The filesystem itself holds no resources.
func (s *FileStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *FileStore) check(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ValidateKey(key)
}

// pathFor maps a validated key onto its file path.
func (s *FileStore) pathFor(key string) string {
	segments := SplitKey(key)
	last := len(segments) - 1
	segments[last] += fileExt
	return filepath.Join(append([]string{s.base}, segments...)...)
}

// keyFor is the inverse of pathFor. Temporary and foreign files report false.
func (s *FileStore) keyFor(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	rel, err := filepath.Rel(s.base, path)
	if err != nil {
		return "", false
	}
	rel = strings.TrimSuffix(rel, fileExt)
	return JoinKey(strings.Split(filepath.ToSlash(rel), "/")...), true
}

func (s *FileStore) storeErr(op, key string, err error) error {
	return errors.NewStoreError(op, err).WithBackend(BackendFile).WithKey(key)
}

var (
	_ Store   = (*FileStore)(nil)
	_ Watcher = (*FileStore)(nil)
)
