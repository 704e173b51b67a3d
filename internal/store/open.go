package store

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// Backend names accepted by Open.
const (
	BackendRedis = "redis"
	BackendFile  = "file"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string

	// FileDir is the base directory of the file backend.
	FileDir string
	// Fs overrides the filesystem of the file backend. Defaults to the OS.
	Fs afero.Fs

	Redis RedisOptions
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendRedis:
		return NewRedisStore(ctx, opts.Redis)
	case BackendFile, "":
		return NewFileStore(opts.Fs, opts.FileDir)
	default:
		return nil, fmt.Errorf("store: unknown backend %q (valid: %s, %s)", opts.Backend, BackendRedis, BackendFile)
	}
}

// Backends returns the valid backend names.
func Backends() []string {
	return []string{BackendRedis, BackendFile}
}
