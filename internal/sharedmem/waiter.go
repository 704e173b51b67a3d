package sharedmem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/store"
)

// WaitForDependency blocks until the record (agentID, actionID) is completed
// and returns its result. It re-reads the record every poll interval; when
// the store implements store.Watcher a change notification triggers an
// extra read, but polling continues regardless, so the poll interval is the
// staleness bound either way.
//
// A zero timeout means the default (30s). On expiry the record is read one
// last time and, if still not completed, the call fails with a TimeoutError
// matching errors.ErrDependencyTimeout. The awaited record is never written.
func (m *Memory) WaitForDependency(ctx context.Context, agentID, actionID string, timeout time.Duration) (json.RawMessage, error) {
	key, err := m.recordKey(agentID, actionID)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	log := m.logger.WithAgent(agentID).WithAction(actionID)
	log.Info("waiting for dependency", "timeout", timeout.String())

	start := time.Now()
	polls := 0
	finish := func(outcome string) {
		m.bus.Publish(event.NewDependencyWaitEvent(agentID, actionID, outcome, time.Since(start), polls))
	}

	check := func() (json.RawMessage, bool, error) {
		polls++
		rec, err := m.read(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if rec != nil && rec.Status == StatusCompleted {
			return rec.Result, true, nil
		}
		return nil, false, nil
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	wake := m.watch(watchCtx, key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		result, done, err := check()
		if err != nil {
			log.Error("dependency wait failed", "error", err)
			finish(event.WaitFailed)
			return nil, err
		}
		if done {
			log.Info("dependency completed", "wait_time", time.Since(start).String(), "polls", polls)
			finish(event.WaitSatisfied)
			return result, nil
		}

		select {
		case <-ctx.Done():
			finish(event.WaitCanceled)
			return nil, fmt.Errorf("wait for %s: %w", key, ctx.Err())

		case <-timer.C:
			// A completion landing between the last poll and the deadline
			// still counts.
			if result, done, err := check(); err == nil && done {
				finish(event.WaitSatisfied)
				return result, nil
			}
			log.Error("dependency timeout", "timeout", timeout.String(), "polls", polls)
			finish(event.WaitTimedOut)
			return nil, errors.NewTimeoutError(fmt.Sprintf("waiting for %s:%s", agentID, actionID), timeout).
				WithCause(errors.ErrDependencyTimeout)

		case <-ticker.C:

		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}

// watch subscribes to change notifications for key when the store supports
// them. The returned channel is nil otherwise, which blocks forever in a
// select and leaves the wait purely polling.
func (m *Memory) watch(ctx context.Context, key string) <-chan struct{} {
	w, ok := m.store.(store.Watcher)
	if !ok {
		return nil
	}
	ch, err := w.Watch(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrWatchUnsupported) {
			m.logger.Debug("change notifications unavailable, polling only", "key", key, "error", err)
		}
		return nil
	}
	return ch
}
