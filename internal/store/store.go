package store

import (
	"context"
	"strings"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

// KeySeparator joins the segments of a key, e.g. "namespace:agent:action".
const KeySeparator = ":"

// Sentinel errors returned by every backend.
var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("store: key not found")

	// ErrWatchUnsupported is returned by Watch when the backend cannot deliver
	// change notifications. Callers fall back to polling.
	ErrWatchUnsupported = errors.New("store: watch not supported")

	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("store: closed")
)

// Entry is one key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the shared key/value contract every agent synchronizes through.
// Implementations only guarantee atomicity of a single write; concurrent
// writers to the same key race and the last write wins.
type Store interface {
	// Set creates or overwrites key. A positive ttl requests expiry on
	// backends that support it; backends without native expiry ignore it.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value of key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan returns every entry whose key starts with prefix, in no
	// particular order.
	Scan(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases the backend's resources.
	Close() error
}

// Watcher is implemented by backends that can signal key changes.
// The returned channel receives a value (coalesced, never blocking the
// backend) whenever key is written or deleted, and is closed when ctx ends.
type Watcher interface {
	Watch(ctx context.Context, key string) (<-chan struct{}, error)
}

// JoinKey builds a key from its segments.
func JoinKey(segments ...string) string {
	return strings.Join(segments, KeySeparator)
}

// SplitKey returns the segments of key.
func SplitKey(key string) []string {
	return strings.Split(key, KeySeparator)
}

// ValidateKey rejects keys that could not be stored identically by every
// backend. Segments become path elements in the file backend, so they must
// be non-empty, must not start with a dot, and must not contain separators.
func ValidateKey(key string) error {
	if key == "" {
		return errors.NewValidationError("key must not be empty").WithField("key")
	}
	for _, seg := range SplitKey(key) {
		if err := validateSegment(seg); err != nil {
			return err.WithValue(key)
		}
	}
	return nil
}

// ValidatePrefix is ValidateKey for scan prefixes, which may be empty and may
// end with a separator.
func ValidatePrefix(prefix string) error {
	trimmed := strings.TrimSuffix(prefix, KeySeparator)
	if trimmed == "" {
		return nil
	}
	for _, seg := range SplitKey(trimmed) {
		if err := validateSegment(seg); err != nil {
			return err.WithField("prefix").WithValue(prefix)
		}
	}
	return nil
}

func validateSegment(seg string) *errors.ValidationError {
	switch {
	case seg == "":
		return errors.NewValidationError("key segments must not be empty").WithField("key")
	case strings.HasPrefix(seg, "."):
		return errors.NewValidationError("key segments must not start with a dot").WithField("key")
	case strings.ContainsAny(seg, "/\\\x00"):
		return errors.NewValidationError("key segments must not contain path separators").WithField("key")
	}
	return nil
}
