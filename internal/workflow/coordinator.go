package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/logging"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

// Record type tags written by the coordinator.
const (
	TypeWorkflowStage  = "workflow_stage"
	TypeTaskAssignment = "task_assignment"
	TypeTaskHandoff    = "task_handoff"

	// AssignedBy identifies the coordinator as the writer of assignments.
	AssignedBy = "workflow_coordinator"
)

// StageState is the lifecycle position of a stage, derived from its record.
type StageState string

// Stage states.
const (
	StatePending    StageState = "pending"
	StateInProgress StageState = "in_progress"
	StateCompleted  StageState = "completed"
	StateStopped    StageState = "stopped"
)

// StageActionID returns the action ID under which a stage's record is kept.
func StageActionID(stage string) string {
	return "stage_" + stage
}

func stateOf(rec *sharedmem.Record) StageState {
	if rec == nil {
		return StatePending
	}
	switch rec.Status {
	case sharedmem.StatusCompleted:
		return StateCompleted
	case sharedmem.StatusStopped:
		return StateStopped
	default:
		return StateInProgress
	}
}

// Task is one entry of a parallel assignment batch.
type Task struct {
	AgentID string         `json:"agentId"`
	TaskID  string         `json:"taskId"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StageResult is the outcome of one completed stage in a sequential run.
type StageResult struct {
	StageName string          `json:"stageName"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Coordinator applies the stage graph on top of shared memory. It keeps no
// stage state of its own.
type Coordinator struct {
	graph       *Graph
	mem         *sharedmem.Memory
	logger      *logging.Logger
	bus         *event.Bus
	maxParallel int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to the memory's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBus sets the event bus. Defaults to the memory's bus.
func WithBus(b *event.Bus) Option {
	return func(c *Coordinator) { c.bus = b }
}

// WithMaxParallel bounds concurrent writes in CoordinateParallelTasks.
// Zero or less means unbounded.
func WithMaxParallel(n int) Option {
	return func(c *Coordinator) { c.maxParallel = n }
}

// NewCoordinator creates a Coordinator. A nil graph means DefaultGraph.
func NewCoordinator(g *Graph, mem *sharedmem.Memory, opts ...Option) (*Coordinator, error) {
	if mem == nil {
		return nil, errors.New("workflow: shared memory is required")
	}
	if g == nil {
		g = DefaultGraph()
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	c := &Coordinator{
		graph:  g,
		mem:    mem,
		logger: mem.Logger(),
		bus:    mem.Bus(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Graph returns the stage graph.
func (c *Coordinator) Graph() *Graph { return c.graph }

// Memory returns the shared memory the coordinator writes to.
func (c *Coordinator) Memory() *sharedmem.Memory { return c.mem }

// AssignTask records a task for a roster agent.
func (c *Coordinator) AssignTask(ctx context.Context, agentID, taskID string, payload map[string]any) (*sharedmem.Record, error) {
	agent, ok := c.graph.Agent(agentID)
	if !ok {
		return nil, errors.NewCoordinatorError("unknown agent", errors.ErrUnknownAgent).
			WithAgent(agentID).WithAction(taskID)
	}

	data := make(map[string]any, len(payload)+4)
	data["type"] = TypeTaskAssignment
	for k, v := range payload {
		data[k] = v
	}
	data["assignedTo"] = agentID
	data["assignedBy"] = AssignedBy
	data["assignmentTime"] = c.mem.Now().UnixMilli()

	rec, err := c.mem.SetAction(ctx, agentID, taskID, data)
	if err != nil {
		return nil, err
	}
	c.logger.WithAgent(agentID).WithAction(taskID).Info("task assigned", "role", agent.PrimaryRole)
	return rec, nil
}

// StartStage checks that every non-exempt dependency of the stage is
// completed and then writes the stage record in progress. A dependency's
// record is looked up under the agent its own stage is assigned to; a
// dependency that is not a stage of the graph is looked up under this
// stage's agent. A completed stage is never reopened; a stopped or
// in-progress stage is restarted.
func (c *Coordinator) StartStage(ctx context.Context, stageName string) (*sharedmem.Record, error) {
	stage, ok := c.graph.Stage(stageName)
	if !ok {
		return nil, errors.NewCoordinatorError("unknown stage", errors.ErrUnknownStage).WithStage(stageName)
	}
	log := c.logger.WithStage(stageName).WithAgent(stage.AssignedAgent)

	current, err := c.mem.GetAction(ctx, stage.AssignedAgent, StageActionID(stageName))
	if err != nil {
		return nil, err
	}
	if stateOf(current) == StateCompleted {
		log.Warn("stage already completed")
		return nil, errors.NewCoordinatorError("stage already completed", errors.ErrStageCompleted).
			WithStage(stageName).WithAgent(stage.AssignedAgent)
	}

	for _, dep := range stage.Dependencies {
		if c.graph.IsExempt(dep) {
			continue
		}
		owner := stage.AssignedAgent
		if depStage, ok := c.graph.Stage(dep); ok {
			owner = depStage.AssignedAgent
		}

		rec, err := c.mem.GetAction(ctx, owner, StageActionID(dep))
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Status != sharedmem.StatusCompleted {
			log.Warn("stage blocked on dependency", "dependency", dep, "state", string(stateOf(rec)))
			c.bus.Publish(event.NewStageBlockedEvent(stageName, dep))
			return nil, errors.NewCoordinatorError(fmt.Sprintf("dependency %s not completed", dep), errors.ErrDependencyNotMet).
				WithStage(stageName).WithAgent(stage.AssignedAgent)
		}
	}

	rec, err := c.mem.SetAction(ctx, stage.AssignedAgent, StageActionID(stageName), map[string]any{
		"type":         TypeWorkflowStage,
		"stageName":    stageName,
		"assignedTo":   stage.AssignedAgent,
		"deliverables": stage.Deliverables,
		"startTime":    c.mem.Now().UnixMilli(),
		"stageStatus":  string(StateInProgress),
		"progress":     0,
	})
	if err != nil {
		return nil, err
	}

	log.Info("workflow stage started", "deliverables", len(stage.Deliverables))
	c.bus.Publish(event.NewStageStartedEvent(stageName, stage.AssignedAgent))
	return rec, nil
}

// CompleteStage completes a started stage on behalf of its assigned agent.
// A stage stopped by an emergency stop stays stopped and the stopped record
// is returned with an error matching ErrCanceled.
func (c *Coordinator) CompleteStage(ctx context.Context, agentID, stageName string, result any) (*sharedmem.Record, error) {
	stage, ok := c.graph.Stage(stageName)
	if !ok {
		return nil, errors.NewCoordinatorError("unknown stage", errors.ErrUnknownStage).WithStage(stageName)
	}
	if agentID != stage.AssignedAgent {
		return nil, errors.NewCoordinatorError(
			fmt.Sprintf("stage is assigned to %s", stage.AssignedAgent), errors.ErrUnauthorizedAgent).
			WithStage(stageName).WithAgent(agentID)
	}

	rec, err := c.mem.CompleteAction(ctx, agentID, StageActionID(stageName), result)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NewNotFoundError("stage", stageName)
	}

	log := c.logger.WithStage(stageName).WithAgent(agentID)
	if rec.Status != sharedmem.StatusCompleted {
		log.Warn("stage not completed", "state", string(stateOf(rec)))
		return rec, errors.NewCoordinatorError("stage was stopped", errors.ErrCanceled).
			WithStage(stageName).WithAgent(agentID)
	}
	log.Info("workflow stage completed")
	c.bus.Publish(event.NewStageCompletedEvent(stageName, agentID))
	return rec, nil
}

// StageState reports where a stage is in its lifecycle.
func (c *Coordinator) StageState(ctx context.Context, stageName string) (StageState, error) {
	stage, ok := c.graph.Stage(stageName)
	if !ok {
		return "", errors.NewCoordinatorError("unknown stage", errors.ErrUnknownStage).WithStage(stageName)
	}
	rec, err := c.mem.GetAction(ctx, stage.AssignedAgent, StageActionID(stageName))
	if err != nil {
		return "", err
	}
	return stateOf(rec), nil
}

// CoordinateParallelTasks assigns every task concurrently and returns the
// task IDs in input order once all writes have finished. The writes have no
// ordering among themselves. Failures are joined; IDs of failed tasks are
// still returned in position.
func (c *Coordinator) CoordinateParallelTasks(ctx context.Context, tasks []Task) ([]string, error) {
	p := pool.New().WithErrors()
	if c.maxParallel > 0 {
		p = p.WithMaxGoroutines(c.maxParallel)
	}

	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.TaskID
		p.Go(func() error {
			if _, err := c.AssignTask(ctx, task.AgentID, task.TaskID, task.Payload); err != nil {
				return fmt.Errorf("assign %s to %s: %w", task.TaskID, task.AgentID, err)
			}
			return nil
		})
	}

	err := p.Wait()
	c.logger.Info("parallel tasks coordinated", "count", len(tasks), "failed", err != nil)
	return ids, err
}

// ExecuteSequentialWorkflow starts each stage in turn and waits for it to be
// completed before starting the next. An empty list runs the whole graph in
// dependency order. Results of the stages completed so far are returned
// alongside any error.
func (c *Coordinator) ExecuteSequentialWorkflow(ctx context.Context, stageNames []string, timeout time.Duration) ([]StageResult, error) {
	if len(stageNames) == 0 {
		order, err := c.graph.Order()
		if err != nil {
			return nil, err
		}
		stageNames = order
	}

	results := make([]StageResult, 0, len(stageNames))
	for _, name := range stageNames {
		if _, err := c.StartStage(ctx, name); err != nil {
			return results, err
		}
		stage, _ := c.graph.Stage(name)
		result, err := c.mem.WaitForDependency(ctx, stage.AssignedAgent, StageActionID(name), timeout)
		if err != nil {
			c.logger.WithStage(name).Error("sequential workflow halted", "error", err, "completed", len(results))
			return results, err
		}
		results = append(results, StageResult{StageName: name, Result: result})
	}
	return results, nil
}
