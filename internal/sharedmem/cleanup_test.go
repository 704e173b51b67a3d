package sharedmem

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/agentsync/internal/store"
)

func TestCleanupOldActions_RemovesExactlyOlderRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestMemory(t, s, WithClock(clock.Now))

		// Old records of every status.
		_, _ = m.SetAction(ctx, "kilo", "old-active", nil)
		_, _ = m.SetAction(ctx, "kilo", "old-done", nil)
		_, _ = m.CompleteAction(ctx, "kilo", "old-done", nil)
		_, _ = m.SetAction(ctx, "roo", "old-stopped", nil)
		_, _ = m.StopAction(ctx, "roo", "old-stopped", "halt")

		clock.Advance(2 * time.Hour)
		_, _ = m.SetAction(ctx, "kilo", "fresh", nil)
		_, _ = m.SetAction(ctx, "roo", "fresh-done", nil)
		_, _ = m.CompleteAction(ctx, "roo", "fresh-done", nil)

		// A record exactly at the cutoff is not older than it and stays.
		clock.Advance(-time.Hour)
		_, _ = m.SetAction(ctx, "codesupernova", "boundary", nil)
		clock.Advance(time.Hour)

		n, err := m.CleanupOldActions(ctx, time.Hour)
		if err != nil {
			t.Fatalf("CleanupOldActions: %v", err)
		}
		if n != 3 {
			t.Errorf("deleted %d records, want 3", n)
		}

		remaining, _ := m.GetAllActions(ctx)
		got := map[string]bool{}
		for _, rec := range remaining {
			got[rec.ActionID] = true
		}
		for _, id := range []string{"fresh", "fresh-done", "boundary"} {
			if !got[id] {
				t.Errorf("%s should survive the sweep", id)
			}
		}
		for _, id := range []string{"old-active", "old-done", "old-stopped"} {
			if got[id] {
				t.Errorf("%s should have been removed", id)
			}
		}
	})
}

func TestSweep_SeparateFinishedRetention(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestMemory(t, s, WithClock(clock.Now))

		_, _ = m.SetAction(ctx, "kilo", "stale-active", nil)
		_, _ = m.SetAction(ctx, "kilo", "finished", nil)
		_, _ = m.CompleteAction(ctx, "kilo", "finished", nil)
		clock.Advance(48 * time.Hour)

		res, err := m.Sweep(ctx, RetentionPolicy{ActiveMaxAge: 24 * time.Hour, FinishedMaxAge: 0})
		if err != nil {
			t.Fatalf("Sweep: %v", err)
		}
		if res.Scanned != 2 || res.Deleted != 1 {
			t.Errorf("result = %+v, want 2 scanned, 1 deleted", res)
		}

		if rec, _ := m.GetAction(ctx, "kilo", "finished"); rec == nil {
			t.Error("finished record should be retained when FinishedMaxAge is zero")
		}
		if rec, _ := m.GetAction(ctx, "kilo", "stale-active"); rec != nil {
			t.Error("stale active record should be removed")
		}
	})
}

func TestCleanupOldActions_DefaultMaxAge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestMemory(t, s, WithClock(clock.Now))

		_, _ = m.SetAction(ctx, "kilo", "a", nil)
		clock.Advance(23 * time.Hour)

		if n, _ := m.CleanupOldActions(ctx, 0); n != 0 {
			t.Errorf("deleted %d records younger than the 24h default", n)
		}
		clock.Advance(2 * time.Hour)
		if n, _ := m.CleanupOldActions(ctx, 0); n != 1 {
			t.Errorf("deleted %d records, want 1 past the 24h default", n)
		}
	})
}

func TestSweep_NamespaceIsolation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestMemory(t, s, WithClock(clock.Now))
		other := newTestMemory(t, s, WithClock(clock.Now), WithNamespace("other"))

		_, _ = m.SetAction(ctx, "kilo", "a", nil)
		_, _ = other.SetAction(ctx, "kilo", "a", nil)
		clock.Advance(time.Hour)

		if _, err := m.CleanupOldActions(ctx, time.Minute); err != nil {
			t.Fatalf("CleanupOldActions: %v", err)
		}
		if rec, _ := other.GetAction(ctx, "kilo", "a"); rec == nil {
			t.Error("sweep must not touch other namespaces")
		}
	})
}

func TestRetentionPolicy_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := RetentionPolicy{ActiveMaxAge: time.Hour, FinishedMaxAge: 10 * time.Minute}

	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"fresh active", Record{Status: StatusActive, Timestamp: now.Add(-30 * time.Minute)}, false},
		{"old active", Record{Status: StatusActive, Timestamp: now.Add(-2 * time.Hour)}, true},
		{"boundary active", Record{Status: StatusActive, Timestamp: now.Add(-time.Hour)}, false},
		{"old completed", Record{Status: StatusCompleted, Timestamp: now.Add(-30 * time.Minute)}, true},
		{"old stopped", Record{Status: StatusStopped, Timestamp: now.Add(-11 * time.Minute)}, true},
		{"no timestamp", Record{Status: StatusActive}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Expired(&tt.rec, now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}

	if (RetentionPolicy{}).Expired(&Record{Status: StatusActive, Timestamp: now.Add(-1000 * time.Hour)}, now) {
		t.Error("zero policy should keep everything")
	}
}
