// Package testutil provides store fixtures and a controllable clock for
// agentsync tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/agentsync/internal/store"
)

// StoreFactory creates a fresh, empty store that is released when the test
// completes.
type StoreFactory func(t *testing.T) store.Store

// Backends returns one factory per store backend, keyed by backend name.
func Backends() map[string]StoreFactory {
	return map[string]StoreFactory{
		store.BackendRedis: NewRedisStore,
		store.BackendFile:  NewMemFileStore,
	}
}

// ForEachBackend runs fn as a subtest once per store backend, in a stable
// order.
func ForEachBackend(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Helper()

	backends := Backends()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		factory := backends[name]
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

// NewRedisStore starts an in-process Redis server and returns a store
// connected to it.
func NewRedisStore(t *testing.T) store.Store {
	t.Helper()

	s, _ := NewRedisStoreWithServer(t)
	return s
}

// NewRedisStoreWithServer is NewRedisStore that also returns the server, so
// tests can fast-forward expiry or simulate an outage.
func NewRedisStoreWithServer(t *testing.T) (store.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStoreFromClient(client, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// NewMemFileStore returns a file store over an in-memory filesystem.
func NewMemFileStore(t *testing.T) store.Store {
	t.Helper()

	s, err := store.NewFileStore(afero.NewMemMapFs(), "/shared")
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return s
}

// SetupStoreDir creates a temporary directory on disk and returns a file
// store rooted there. The directory is cleaned up when the test completes.
func SetupStoreDir(t *testing.T) (*store.FileStore, string) {
	t.Helper()

	dir := t.TempDir()
	s, err := store.NewFileStore(afero.NewOsFs(), dir)
	if err != nil {
		t.Fatalf("failed to create file store in %s: %v", dir, err)
	}
	return s, dir
}

// SetupStoreDirWithContent is SetupStoreDir with raw files written under
// the store directory first. The files map holds relative paths to
// contents, which lets tests plant foreign or corrupt records.
func SetupStoreDirWithContent(t *testing.T, files map[string]string) (*store.FileStore, string) {
	t.Helper()

	s, dir := SetupStoreDir(t)
	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
	return s, dir
}

// Clock is a manually advanced time source, safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d, which may be negative.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
