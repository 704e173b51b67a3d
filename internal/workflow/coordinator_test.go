package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
	"github.com/Iron-Ham/agentsync/internal/store"
	"github.com/Iron-Ham/agentsync/internal/testutil"
)

func newTestCoordinator(t *testing.T, s store.Store, memOpts ...sharedmem.Option) *Coordinator {
	t.Helper()
	g := DefaultGraph()
	base := []sharedmem.Option{
		sharedmem.WithPollInterval(10 * time.Millisecond),
		sharedmem.WithRoles(g.Roles()),
	}
	mem, err := sharedmem.New(s, append(base, memOpts...)...)
	if err != nil {
		t.Fatalf("sharedmem.New: %v", err)
	}
	c, err := NewCoordinator(g, mem)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func TestNewCoordinator_Validation(t *testing.T) {
	if _, err := NewCoordinator(nil, nil); err == nil {
		t.Error("nil memory should be rejected")
	}

	mem, _ := sharedmem.New(testutil.NewMemFileStore(t))
	bad := &Graph{Agents: []Agent{{ID: "a"}}, Stages: []Stage{{Name: "x", AssignedAgent: "nobody"}}}
	if _, err := NewCoordinator(bad, mem); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("invalid graph error = %v, want ErrInvalidInput", err)
	}

	c, err := NewCoordinator(nil, mem)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if len(c.Graph().Stages) != 4 {
		t.Error("nil graph should fall back to the default graph")
	}
}

func TestFrontendBackendScenario(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		c := newTestCoordinator(t, s)

		// The frontend stage only depends on an exempt stage.
		if _, err := c.StartStage(ctx, "frontend_development"); err != nil {
			t.Fatalf("StartStage(frontend): %v", err)
		}
		if st, _ := c.StageState(ctx, "frontend_development"); st != StateInProgress {
			t.Errorf("frontend state = %s, want in_progress", st)
		}

		_, err := c.StartStage(ctx, "backend_integration")
		if !errors.Is(err, errors.ErrDependencyNotMet) {
			t.Fatalf("StartStage(backend) = %v, want ErrDependencyNotMet", err)
		}
		var coordErr *errors.CoordinatorError
		if !errors.As(err, &coordErr) || coordErr.StageName != "backend_integration" {
			t.Errorf("error should be a CoordinatorError for backend_integration, got %v", err)
		}
		if st, _ := c.StageState(ctx, "backend_integration"); st != StatePending {
			t.Errorf("blocked stage state = %s, want pending", st)
		}

		if _, err := c.CompleteStage(ctx, "kilo", "frontend_development", map[string]any{"success": true}); err != nil {
			t.Fatalf("CompleteStage(frontend): %v", err)
		}
		if st, _ := c.StageState(ctx, "frontend_development"); st != StateCompleted {
			t.Errorf("frontend state = %s, want completed", st)
		}

		rec, err := c.StartStage(ctx, "backend_integration")
		if err != nil {
			t.Fatalf("StartStage(backend) after completion: %v", err)
		}
		if rec.AgentID != "roo" || rec.Type != TypeWorkflowStage {
			t.Errorf("stage record = %+v", rec)
		}
		if st, _ := c.StageState(ctx, "backend_integration"); st != StateInProgress {
			t.Errorf("backend state = %s, want in_progress", st)
		}
	})
}

func TestStartStage_UnknownStage(t *testing.T) {
	c := newTestCoordinator(t, testutil.NewMemFileStore(t))
	_, err := c.StartStage(context.Background(), "deploy")
	if !errors.Is(err, errors.ErrUnknownStage) {
		t.Errorf("error = %v, want ErrUnknownStage", err)
	}
	if _, err := c.StageState(context.Background(), "deploy"); !errors.Is(err, errors.ErrUnknownStage) {
		t.Errorf("StageState error = %v, want ErrUnknownStage", err)
	}
}

func TestStartStage_StoppedDependencyBlocks(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, testutil.NewMemFileStore(t))

	_, _ = c.StartStage(ctx, "frontend_development")
	_, _ = c.Memory().StopAction(ctx, "kilo", StageActionID("frontend_development"), "halt")

	if st, _ := c.StageState(ctx, "frontend_development"); st != StateStopped {
		t.Errorf("state = %s, want stopped", st)
	}
	if _, err := c.StartStage(ctx, "backend_integration"); !errors.Is(err, errors.ErrDependencyNotMet) {
		t.Errorf("error = %v, want ErrDependencyNotMet", err)
	}
}

func TestStartStage_CompletedStageNotReopened(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		c := newTestCoordinator(t, s)

		_, _ = c.StartStage(ctx, "frontend_development")
		if _, err := c.CompleteStage(ctx, "kilo", "frontend_development", "shipped"); err != nil {
			t.Fatalf("CompleteStage: %v", err)
		}
		if _, err := c.StartStage(ctx, "backend_integration"); err != nil {
			t.Fatalf("StartStage(backend): %v", err)
		}

		rec, err := c.StartStage(ctx, "frontend_development")
		if !errors.Is(err, errors.ErrStageCompleted) {
			t.Fatalf("restart error = %v, want ErrStageCompleted", err)
		}
		if rec != nil {
			t.Errorf("restart returned record %+v", rec)
		}
		if st, _ := c.StageState(ctx, "frontend_development"); st != StateCompleted {
			t.Errorf("state = %s, want completed", st)
		}
		if _, err := c.StartStage(ctx, "backend_integration"); err != nil {
			t.Errorf("dependent blocked after rejected restart: %v", err)
		}
	})
}

func TestStartStage_StoppedStageRestarts(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, testutil.NewMemFileStore(t))

	_, _ = c.StartStage(ctx, "frontend_development")
	_, _ = c.Memory().StopAction(ctx, "kilo", StageActionID("frontend_development"), "halt")

	if _, err := c.StartStage(ctx, "frontend_development"); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	if st, _ := c.StageState(ctx, "frontend_development"); st != StateInProgress {
		t.Errorf("state = %s, want in_progress", st)
	}
}

func TestCompleteStage_StoppedStage(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		c := newTestCoordinator(t, s)

		_, _ = c.StartStage(ctx, "frontend_development")
		_, _ = c.Memory().StopAction(ctx, "kilo", StageActionID("frontend_development"), "halt")

		rec, err := c.CompleteStage(ctx, "kilo", "frontend_development", "late")
		if !errors.Is(err, errors.ErrCanceled) {
			t.Fatalf("error = %v, want ErrCanceled", err)
		}
		if rec == nil || rec.Status != sharedmem.StatusStopped {
			t.Fatalf("record = %+v, want stopped", rec)
		}
		if rec.StopReason != "halt" {
			t.Errorf("stop reason = %q, want halt", rec.StopReason)
		}
		if _, err := c.StartStage(ctx, "backend_integration"); !errors.Is(err, errors.ErrDependencyNotMet) {
			t.Errorf("dependent start = %v, want ErrDependencyNotMet", err)
		}
	})
}

func TestStartStage_PayloadAndEvents(t *testing.T) {
	ctx := context.Background()
	bus := event.NewBus()
	var mu sync.Mutex
	var seen []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.EventType())
	})
	c := newTestCoordinator(t, testutil.NewMemFileStore(t), sharedmem.WithBus(bus))

	_, _ = c.StartStage(ctx, "backend_integration")
	rec, err := c.StartStage(ctx, "frontend_development")
	if err != nil {
		t.Fatalf("StartStage: %v", err)
	}

	if rec.PayloadString("stageName") != "frontend_development" ||
		rec.PayloadString("assignedTo") != "kilo" ||
		rec.PayloadString("stageStatus") != string(StateInProgress) {
		t.Errorf("payload = %v", rec.Payload)
	}
	if rec.AgentRole != "frontend_development" {
		t.Errorf("AgentRole = %q", rec.AgentRole)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{event.TypeStageBlocked, event.TypeActionSet, event.TypeStageStarted}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", seen, want)
	}
}

func TestCompleteStage(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		c := newTestCoordinator(t, s)

		_, err := c.CompleteStage(ctx, "kilo", "frontend_development", nil)
		if !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("completing an unstarted stage = %v, want ErrNotFound", err)
		}

		_, _ = c.StartStage(ctx, "frontend_development")
		_, err = c.CompleteStage(ctx, "roo", "frontend_development", nil)
		if !errors.Is(err, errors.ErrUnauthorizedAgent) {
			t.Errorf("wrong agent = %v, want ErrUnauthorizedAgent", err)
		}
		if st, _ := c.StageState(ctx, "frontend_development"); st != StateInProgress {
			t.Errorf("unauthorized completion changed state to %s", st)
		}

		if _, err := c.CompleteStage(ctx, "kilo", "nope", nil); !errors.Is(err, errors.ErrUnknownStage) {
			t.Errorf("unknown stage = %v, want ErrUnknownStage", err)
		}

		rec, err := c.CompleteStage(ctx, "kilo", "frontend_development", map[string]any{"success": true})
		if err != nil {
			t.Fatalf("CompleteStage: %v", err)
		}
		if string(rec.Result) != `{"success":true}` {
			t.Errorf("result = %s", rec.Result)
		}
	})
}

func TestAssignTask(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		c := newTestCoordinator(t, s)

		rec, err := c.AssignTask(ctx, "kilo", "ui-1", map[string]any{"title": "dashboard", "assignedBy": "someone"})
		if err != nil {
			t.Fatalf("AssignTask: %v", err)
		}
		got, _ := c.Memory().GetAction(ctx, "kilo", "ui-1")
		if got == nil {
			t.Fatal("assignment not stored")
		}
		if got.PayloadString("assignedTo") != "kilo" || got.PayloadString("assignedBy") != AssignedBy {
			t.Errorf("payload = %v", got.Payload)
		}
		if got.PayloadString("title") != "dashboard" {
			t.Errorf("caller payload lost: %v", got.Payload)
		}
		if got.AgentRole != "frontend_development" || rec.Type != TypeTaskAssignment {
			t.Errorf("record = %+v", got)
		}

		if _, err := c.AssignTask(ctx, "ghost", "t", nil); !errors.Is(err, errors.ErrUnknownAgent) {
			t.Errorf("unknown agent = %v, want ErrUnknownAgent", err)
		}
	})
}

func TestCoordinateParallelTasks(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		c := newTestCoordinator(t, s)

		tasks := []Task{
			{AgentID: "kilo", TaskID: "t1"},
			{AgentID: "roo", TaskID: "t2"},
			{AgentID: "codesupernova", TaskID: "t3"},
			{AgentID: "kilo", TaskID: "t4"},
		}
		ids, err := c.CoordinateParallelTasks(ctx, tasks)
		if err != nil {
			t.Fatalf("CoordinateParallelTasks: %v", err)
		}
		if strings.Join(ids, ",") != "t1,t2,t3,t4" {
			t.Errorf("ids = %v, want input order", ids)
		}

		// Every write is visible once the call returns.
		for _, task := range tasks {
			if rec, _ := c.Memory().GetAction(ctx, task.AgentID, task.TaskID); rec == nil {
				t.Errorf("%s not stored", task.TaskID)
			}
		}
	})
}

func TestCoordinateParallelTasks_JoinsErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, testutil.NewMemFileStore(t))
	c.maxParallel = 2

	ids, err := c.CoordinateParallelTasks(ctx, []Task{
		{AgentID: "ghost", TaskID: "a"},
		{AgentID: "kilo", TaskID: "b"},
		{AgentID: "phantom", TaskID: "c"},
	})
	if !errors.Is(err, errors.ErrUnknownAgent) {
		t.Fatalf("error = %v, want ErrUnknownAgent", err)
	}
	if !strings.Contains(err.Error(), "ghost") || !strings.Contains(err.Error(), "phantom") {
		t.Errorf("error should mention both failures: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("ids = %v", ids)
	}
	if rec, _ := c.Memory().GetAction(ctx, "kilo", "b"); rec == nil {
		t.Error("successful assignment should still be stored")
	}
}

// completeOnStart completes every stage as soon as it starts, from another
// goroutine, like an agent picking up its work.
func completeOnStart(t *testing.T, c *Coordinator, bus *event.Bus, skip string) *sync.WaitGroup {
	t.Helper()
	var wg sync.WaitGroup
	bus.Subscribe(event.TypeStageStarted, func(e event.Event) {
		started := e.(event.StageStartedEvent)
		if started.Stage == skip {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(20 * time.Millisecond)
			_, _ = c.CompleteStage(context.Background(), started.AgentID, started.Stage, map[string]any{"stage": started.Stage})
		}()
	})
	return &wg
}

func TestExecuteSequentialWorkflow(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, s store.Store) {
		bus := event.NewBus()
		c := newTestCoordinator(t, s, sharedmem.WithBus(bus))
		wg := completeOnStart(t, c, bus, "")

		results, err := c.ExecuteSequentialWorkflow(context.Background(), nil, 5*time.Second)
		wg.Wait()
		if err != nil {
			t.Fatalf("ExecuteSequentialWorkflow: %v", err)
		}
		if len(results) != 4 {
			t.Fatalf("results = %d, want 4", len(results))
		}
		if results[3].StageName != "validation_and_reviewing" {
			t.Errorf("last stage = %s", results[3].StageName)
		}
		if string(results[0].Result) != `{"stage":"frontend_development"}` {
			t.Errorf("first result = %s", results[0].Result)
		}
	})
}

func TestExecuteSequentialWorkflow_PartialResultsOnTimeout(t *testing.T) {
	bus := event.NewBus()
	c := newTestCoordinator(t, testutil.NewMemFileStore(t), sharedmem.WithBus(bus))
	wg := completeOnStart(t, c, bus, "backend_integration")

	results, err := c.ExecuteSequentialWorkflow(context.Background(),
		[]string{"frontend_development", "backend_integration", "testing_and_fixations"}, 200*time.Millisecond)
	wg.Wait()

	if !errors.Is(err, errors.ErrDependencyTimeout) {
		t.Fatalf("error = %v, want ErrDependencyTimeout", err)
	}
	if len(results) != 1 || results[0].StageName != "frontend_development" {
		t.Errorf("results = %+v, want only frontend_development", results)
	}
	if st, _ := c.StageState(context.Background(), "testing_and_fixations"); st != StatePending {
		t.Errorf("stage after the failure should not start, state = %s", st)
	}
}

func TestExecuteSequentialWorkflow_StopsOnUnmetDependency(t *testing.T) {
	c := newTestCoordinator(t, testutil.NewMemFileStore(t))

	results, err := c.ExecuteSequentialWorkflow(context.Background(), []string{"backend_integration"}, time.Second)
	if !errors.Is(err, errors.ErrDependencyNotMet) {
		t.Errorf("error = %v, want ErrDependencyNotMet", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}
