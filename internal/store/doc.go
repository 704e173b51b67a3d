// Package store provides the shared key/value contract agents synchronize
// through, with a networked Redis backend and a filesystem backend.
//
// Both backends are observably identical to callers: the same keys, the same
// bytes, ErrNotFound for absent keys, idempotent deletes, and prefix scans.
// They differ only in expiry. Redis expires keys natively from the ttl given
// to Set; the file backend has no expiry and relies on an external sweep.
//
// # Consistency
//
// Each write to a single key is atomic (SET in Redis, temp file plus rename on
// disk). Nothing else is coordinated: concurrent writers to one key race and
// the last write wins. Callers needing stricter ordering serialize their own
// writers.
//
// # Change Notifications
//
// Backends implement [Watcher] when they can signal that a key changed. Redis
// publishes changed keys on a pub/sub channel; the file backend uses fsnotify
// when running on the OS filesystem. Notifications are hints only and callers
// must keep polling.
package store
