package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
	"github.com/Iron-Ham/agentsync/internal/store"
	"github.com/Iron-Ham/agentsync/internal/testutil"
)

// failingStore fails every scan.
type failingStore struct {
	store.Store
}

func (failingStore) Scan(context.Context, string) ([]store.Entry, error) {
	return nil, errors.NewStoreError("scan", errors.New("connection refused")).WithBackend("test")
}

func TestGetWorkflowStatus(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		clock := testutil.NewClock()
		c := newTestCoordinator(t, s, sharedmem.WithClock(clock.Now))

		_, _ = c.StartStage(ctx, "frontend_development")
		clock.Advance(time.Minute)
		_, _ = c.CompleteStage(ctx, "kilo", "frontend_development", nil)
		_, _ = c.StartStage(ctx, "backend_integration")
		_, _ = c.AssignTask(ctx, "codesupernova", "dash", nil)

		status := c.GetWorkflowStatus(ctx)
		if status.Partial {
			t.Fatalf("unexpected partial status: %s", status.Error)
		}

		front, ok := status.Stages["frontend_development"]
		if !ok || front.Status != StateCompleted || front.AssignedTo != "kilo" {
			t.Errorf("frontend = %+v", front)
		}
		back, ok := status.Stages["backend_integration"]
		if !ok || back.Status != StateInProgress || back.Progress != 0 {
			t.Errorf("backend = %+v", back)
		}
		if !back.StartTime.Equal(clock.Now().Truncate(time.Millisecond)) {
			t.Errorf("backend start = %v, want %v", back.StartTime, clock.Now())
		}
		if _, ok := status.Stages["testing_and_fixations"]; ok {
			t.Error("unstarted stages should not be reported")
		}

		tests := []struct {
			agent             string
			active, completed int
		}{
			{"kilo", 0, 1},
			{"roo", 1, 0},
			{"codesupernova", 1, 0},
		}
		for _, tt := range tests {
			w := status.Agents[tt.agent]
			if w == nil || w.ActiveTasks != tt.active || w.CompletedTasks != tt.completed {
				t.Errorf("agents[%s] = %+v, want %d active %d completed", tt.agent, w, tt.active, tt.completed)
			}
		}
	})
}

func TestGetWorkflowStatus_Degrades(t *testing.T) {
	c := newTestCoordinator(t, failingStore{Store: testutil.NewMemFileStore(t)})

	status := c.GetWorkflowStatus(context.Background())
	if !status.Partial || status.Error == "" {
		t.Errorf("expected a partial report, got %+v", status)
	}
	if len(status.Agents) != 3 {
		t.Errorf("roster should still be listed, got %d agents", len(status.Agents))
	}
}

func TestGetAgentStatus(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock()
	c := newTestCoordinator(t, testutil.NewMemFileStore(t), sharedmem.WithClock(clock.Now))

	for i := range 7 {
		_, _ = c.AssignTask(ctx, "roo", fmt.Sprintf("t%d", i), nil)
		clock.Advance(time.Second)
	}
	_, _ = c.Memory().CompleteAction(ctx, "roo", "t0", nil)

	status, err := c.GetAgentStatus(ctx, "roo")
	if err != nil {
		t.Fatalf("GetAgentStatus: %v", err)
	}
	if status.Name != "Roo Code" || status.PrimaryRole != "backend_integration" {
		t.Errorf("roster info = %+v", status.Agent)
	}
	if status.ActiveTasks != 6 || status.CompletedTasks != 1 {
		t.Errorf("counts = %d active %d completed", status.ActiveTasks, status.CompletedTasks)
	}
	if len(status.RecentActions) != 5 {
		t.Fatalf("recent = %d, want 5", len(status.RecentActions))
	}
	if status.RecentActions[0].ActionID != "t2" || status.RecentActions[4].ActionID != "t6" {
		t.Errorf("recent should be the newest five, oldest first: %s..%s",
			status.RecentActions[0].ActionID, status.RecentActions[4].ActionID)
	}

	if _, err := c.GetAgentStatus(ctx, "ghost"); !errors.Is(err, errors.ErrUnknownAgent) {
		t.Errorf("unknown agent = %v, want ErrUnknownAgent", err)
	}
}
