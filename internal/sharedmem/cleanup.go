package sharedmem

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/store"
)

// RetentionPolicy sets how long records are kept, by status class.
// A zero age keeps that class forever.
type RetentionPolicy struct {
	// ActiveMaxAge applies to active records.
	ActiveMaxAge time.Duration
	// FinishedMaxAge applies to completed and stopped records.
	FinishedMaxAge time.Duration
}

// UniformRetention returns a policy applying maxAge to every status.
func UniformRetention(maxAge time.Duration) RetentionPolicy {
	return RetentionPolicy{ActiveMaxAge: maxAge, FinishedMaxAge: maxAge}
}

func (p RetentionPolicy) maxAgeFor(s Status) time.Duration {
	if s.IsTerminal() {
		return p.FinishedMaxAge
	}
	return p.ActiveMaxAge
}

// Expired reports whether rec is past the age the policy allows at now.
// Records without a timestamp never expire.
func (p RetentionPolicy) Expired(rec *Record, now time.Time) bool {
	maxAge := p.maxAgeFor(rec.Status)
	if maxAge <= 0 || rec.Timestamp.IsZero() {
		return false
	}
	return rec.Timestamp.UnixMilli() < now.Add(-maxAge).UnixMilli()
}

// SweepResult summarizes one garbage-collection pass.
type SweepResult struct {
	Scanned int // Record entries read
	Deleted int // Records removed
	Skipped int // Undecodable entries left in place
}

// CleanupOldActions deletes every record, whatever its status, whose
// timestamp is older than now-maxAge and returns how many were removed.
// A zero maxAge means DefaultMaxAge.
func (m *Memory) CleanupOldActions(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	res, err := m.Sweep(ctx, UniformRetention(maxAge))
	return res.Deleted, err
}

// Sweep deletes records older than the policy allows for their status.
// Records without a timestamp and entries that cannot be decoded are left
// in place. Delete failures do not stop the sweep; they are joined into
// the returned error alongside the partial result.
func (m *Memory) Sweep(ctx context.Context, policy RetentionPolicy) (SweepResult, error) {
	var res SweepResult

	entries, err := m.store.Scan(ctx, m.namespace+store.KeySeparator)
	if err != nil {
		m.logger.Error("failed to cleanup old actions", "error", err)
		return res, err
	}

	now := m.now()
	var errs []error
	for _, e := range entries {
		if len(store.SplitKey(e.Key)) != 3 {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res.Scanned++

		rec, err := decodeRecord(e.Key, e.Value)
		if err != nil {
			res.Skipped++
			m.logger.Warn("skipping undecodable record", "key", e.Key, "error", err)
			continue
		}

		if !policy.Expired(rec, now) {
			continue
		}

		if err := m.store.Delete(ctx, e.Key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", e.Key, err))
			continue
		}
		res.Deleted++
	}

	m.logger.Info("cleaned up old actions",
		"scanned", res.Scanned, "cleaned_count", res.Deleted, "skipped", res.Skipped)
	m.bus.Publish(event.NewCleanupEvent(res.Scanned, res.Deleted, res.Skipped))

	return res, errors.Join(errs...)
}
