package orchestration

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/agentsync/internal/approval"
	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/logging"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
	"github.com/Iron-Ham/agentsync/internal/workflow"
)

// Defaults used when no option overrides them.
const (
	DefaultStallThreshold  = 30 * time.Minute
	DefaultStopConcurrency = 8

	historyLimit       = 100
	reportHistoryLimit = 10
)

// Submitter is implemented by approvers that can file a request without
// waiting for its decision. Requests raised on paths that must not block,
// such as an emergency stop, are submitted when the approver supports it.
type Submitter interface {
	Submit(ctx context.Context, req approval.Request) error
}

// Execution is one entry of the controller's history.
type Execution struct {
	ID        string    `json:"executionId"`
	Action    string    `json:"action"`
	Result    any       `json:"result,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Controller puts a human in the loop around the workflow coordinator:
// approvals, checkpoints, stall monitoring, and emergency stop. Its queue
// and history are process-local; everything else lives in the store.
type Controller struct {
	coord    *workflow.Coordinator
	mem      *sharedmem.Memory
	approver approval.Approver
	logger   *logging.Logger
	bus      *event.Bus
	now      func() time.Time

	stallThreshold  time.Duration
	stopConcurrency int

	mu      sync.Mutex
	running bool
	queue   []approval.Request
	history []Execution
	// raised maps a stalled stage already escalated to the start time it
	// was escalated for, so a stage is escalated once per start.
	raised map[string]time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to the coordinator's memory logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBus sets the event bus. Defaults to the memory's bus.
func WithBus(b *event.Bus) Option {
	return func(c *Controller) { c.bus = b }
}

// WithClock overrides the time source. Defaults to the memory's clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStallThreshold sets how long a stage may stay in progress before
// monitoring escalates it.
func WithStallThreshold(d time.Duration) Option {
	return func(c *Controller) { c.stallThreshold = d }
}

// WithStopConcurrency bounds concurrent writes during an emergency stop.
func WithStopConcurrency(n int) Option {
	return func(c *Controller) { c.stopConcurrency = n }
}

// New creates a Controller.
func New(coord *workflow.Coordinator, approver approval.Approver, opts ...Option) (*Controller, error) {
	if coord == nil {
		return nil, errors.New("orchestration: coordinator is required")
	}
	if approver == nil {
		return nil, errors.New("orchestration: approver is required")
	}

	mem := coord.Memory()
	c := &Controller{
		coord:           coord,
		mem:             mem,
		approver:        approver,
		logger:          mem.Logger(),
		bus:             mem.Bus(),
		now:             mem.Now,
		stallThreshold:  DefaultStallThreshold,
		stopConcurrency: DefaultStopConcurrency,
		raised:          make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stallThreshold <= 0 {
		c.stallThreshold = DefaultStallThreshold
	}
	if c.stopConcurrency <= 0 {
		c.stopConcurrency = DefaultStopConcurrency
	}
	return c, nil
}

// IsRunning reports whether a collaboration workflow is in progress and has
// not been stopped.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

// ApprovalQueue returns a copy of every approval request raised so far,
// resolved or not, in the order raised.
func (c *Controller) ApprovalQueue() []approval.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queue)
}

// History returns a copy of the execution history, oldest first.
func (c *Controller) History() []Execution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// RecordExecution appends an entry to the history, keeping the newest 100.
func (c *Controller) RecordExecution(action string, result any) Execution {
	exec := Execution{
		ID:        "exec_" + uuid.NewString(),
		Action:    action,
		Result:    result,
		Timestamp: c.now(),
	}

	c.mu.Lock()
	c.history = append(c.history, exec)
	if n := len(c.history); n > historyLimit {
		c.history = slices.Clone(c.history[n-historyLimit:])
	}
	c.mu.Unlock()
	return exec
}

// enqueue adds req to the approval queue and announces it.
func (c *Controller) enqueue(req approval.Request) {
	c.mu.Lock()
	c.queue = append(c.queue, req)
	c.mu.Unlock()

	c.logger.Info("human approval requested",
		"approval_type", req.Type, "approval_id", req.ID, "priority", string(req.Priority))
	c.bus.Publish(event.NewApprovalRequestedEvent(req.ID, req.Type, string(req.Priority), req.Checkpoint))
}

// resolve records a decision on a queued request and announces it.
func (c *Controller) resolve(req *approval.Request, d approval.Decision) {
	req.Resolve(d)

	c.mu.Lock()
	for i := range c.queue {
		if c.queue[i].ID == req.ID {
			c.queue[i] = *req
			break
		}
	}
	c.mu.Unlock()

	c.bus.Publish(event.NewApprovalResolvedEvent(req.ID, req.Type, d.Approved, d.By, d.Reason))
}

// RequestHumanApproval queues a request and blocks until the approver
// decides it. A rejection fails with ErrApprovalRejected.
func (c *Controller) RequestHumanApproval(ctx context.Context, requestType string, details map[string]any) (approval.Request, error) {
	req := approval.NewRequest(requestType, details, c.now())
	c.enqueue(req)

	d, err := c.approver.Await(ctx, req)
	if err != nil {
		c.logger.Error("human approval request failed", "approval_type", requestType, "approval_id", req.ID, "error", err)
		return req, fmt.Errorf("await approval %s: %w", req.ID, err)
	}
	if d.At.IsZero() {
		d.At = c.now()
	}
	c.resolve(&req, d)

	if !d.Approved {
		c.logger.Warn("human approval rejected", "approval_type", requestType, "approval_id", req.ID, "reason", d.Reason)
		return req, errors.NewCoordinatorError(fmt.Sprintf("%s rejected", requestType), errors.ErrApprovalRejected).
			WithAction(req.ID)
	}
	c.logger.Info("human approval granted", "approval_type", requestType, "approval_id", req.ID, "approved_by", d.By)
	return req, nil
}

// WaitForHumanCheckpoint blocks until a human has reviewed a checkpoint.
// The returned request carries the review time in ResolvedAt.
func (c *Controller) WaitForHumanCheckpoint(ctx context.Context, checkpointType string, details map[string]any) (approval.Request, error) {
	cp := approval.NewCheckpoint(checkpointType, details, c.now())
	c.logger.Info("human checkpoint reached", "checkpoint_type", checkpointType, "checkpoint_id", cp.ID)
	c.bus.Publish(event.NewApprovalRequestedEvent(cp.ID, cp.Type, string(cp.Priority), true))

	d, err := c.approver.Await(ctx, cp)
	if err != nil {
		c.logger.Error("human checkpoint failed", "checkpoint_type", checkpointType, "error", err)
		return cp, fmt.Errorf("await checkpoint %s: %w", cp.ID, err)
	}
	if d.At.IsZero() {
		d.At = c.now()
	}
	cp.Resolve(d)
	c.bus.Publish(event.NewApprovalResolvedEvent(cp.ID, cp.Type, d.Approved, d.By, d.Reason))

	if !d.Approved {
		return cp, errors.NewCoordinatorError(fmt.Sprintf("checkpoint %s rejected", checkpointType), errors.ErrApprovalRejected).
			WithAction(cp.ID)
	}
	c.logger.Info("human checkpoint approved",
		"checkpoint_type", checkpointType, "review_duration", cp.ResolvedAt.Sub(cp.RequestedAt).String())
	return cp, nil
}

// raise queues a request without waiting for its decision. Approvers that
// implement Submitter receive it; otherwise it only lives in the queue.
func (c *Controller) raise(ctx context.Context, requestType string, details map[string]any) approval.Request {
	req := approval.NewRequest(requestType, details, c.now())
	c.enqueue(req)
	if s, ok := c.approver.(Submitter); ok {
		if err := s.Submit(ctx, req); err != nil {
			c.logger.Error("failed to submit approval request", "approval_id", req.ID, "error", err)
		}
	}
	return req
}

// StopFailure names an action the emergency stop could not write.
type StopFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// StopReport summarizes an emergency stop.
type StopReport struct {
	Reason string `json:"reason"`
	// Stopped and Skipped hold "agent:action" keys. Skipped actions had
	// already finished by the time the stop reached them.
	Stopped []string         `json:"stopped"`
	Skipped []string         `json:"skipped,omitempty"`
	Failed  []StopFailure    `json:"failed,omitempty"`
	Request approval.Request `json:"request"`
}

// EmergencyStop halts the controller and stops every action that is active
// at the moment of the call, then raises a critical request for a human.
// The stop works from a snapshot: actions created after it are not stopped.
// The critical request is not awaited. If any action could not be stopped
// the report is still returned together with the joined errors.
func (c *Controller) EmergencyStop(ctx context.Context, reason string) (*StopReport, error) {
	c.logger.Error("emergency stop initiated", "reason", reason)
	c.setRunning(false)

	active, err := c.mem.GetActiveActions(ctx)
	if err != nil {
		c.logger.Error("emergency stop failed", "error", err)
		return nil, err
	}

	report := &StopReport{Reason: reason, Stopped: []string{}}
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(c.stopConcurrency)
	for _, rec := range active {
		key := rec.AgentID + ":" + rec.ActionID
		g.Go(func() error {
			stopped, err := c.mem.StopAction(ctx, rec.AgentID, rec.ActionID, reason)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, StopFailure{Key: key, Error: err.Error()})
				errs = append(errs, fmt.Errorf("stop %s: %w", key, err))
			case stopped != nil && stopped.Status == sharedmem.StatusStopped:
				report.Stopped = append(report.Stopped, key)
			default:
				report.Skipped = append(report.Skipped, key)
			}
			// Best effort: one failed write must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(report.Stopped)
	slices.Sort(report.Skipped)

	report.Request = c.raise(ctx, approval.TypeCriticalError, map[string]any{
		"description": "Emergency stop activated",
		"details": map[string]any{
			"reason":      reason,
			"activeTasks": len(active),
			"timestamp":   c.now().UnixMilli(),
		},
	})

	c.bus.Publish(event.NewEmergencyStopEvent(reason, len(report.Stopped), len(report.Failed)))
	c.RecordExecution("emergency_stop", map[string]any{
		"reason":  reason,
		"stopped": len(report.Stopped),
		"failed":  len(report.Failed),
	})

	if len(errs) > 0 {
		return report, fmt.Errorf("emergency stop: %d of %d actions not stopped: %w",
			len(errs), len(active), errors.Join(errs...))
	}
	return report, nil
}

// StalledStage is a stage that has been in progress past the threshold.
type StalledStage struct {
	Stage      string        `json:"stage"`
	AssignedTo string        `json:"assignedTo"`
	Duration   time.Duration `json:"duration"`
	// RequestID is set when this report escalated the stall.
	RequestID string `json:"requestId,omitempty"`
}

// MonitoringReport is a point-in-time view of agent activity.
type MonitoringReport struct {
	Timestamp           time.Time                        `json:"timestamp"`
	WorkflowStatus      *workflow.WorkflowStatus         `json:"workflowStatus"`
	CollaborationStatus *sharedmem.CollaborationStatus   `json:"collaborationStatus"`
	ActiveAgents        map[string]*sharedmem.AgentStats `json:"activeAgents"`
	HumanInterventions  int                              `json:"humanInterventions"`
	ExecutionHistory    []Execution                      `json:"executionHistory"`
	StalledStages       []StalledStage                   `json:"stalledStages,omitempty"`
}

// MonitorAgentActivities reports on agent activity and escalates stages
// stalled past the threshold with a critical request. It never blocks on a
// human and never fails; store errors show up as partial sub-reports.
func (c *Controller) MonitorAgentActivities(ctx context.Context) *MonitoringReport {
	ws := c.coord.GetWorkflowStatus(ctx)
	cs := c.mem.GetCollaborationStatus(ctx)
	now := c.now()

	history := c.History()
	if n := len(history); n > reportHistoryLimit {
		history = history[n-reportHistoryLimit:]
	}

	report := &MonitoringReport{
		Timestamp:           now,
		WorkflowStatus:      ws,
		CollaborationStatus: cs,
		ActiveAgents:        cs.AgentStats,
		ExecutionHistory:    history,
	}

	names := make([]string, 0, len(ws.Stages))
	for name := range ws.Stages {
		names = append(names, name)
	}
	slices.Sort(names)

	inProgress := make(map[string]bool, len(names))
	for _, name := range names {
		info := ws.Stages[name]
		if info.Status != workflow.StateInProgress {
			continue
		}
		inProgress[name] = true
		duration := now.Sub(info.StartTime)
		if duration <= c.stallThreshold {
			continue
		}

		stall := StalledStage{Stage: name, AssignedTo: info.AssignedTo, Duration: duration}
		c.logger.WithStage(name).Warn("workflow stage stalled",
			"duration", fmt.Sprintf("%d minutes", int(duration.Minutes())), "assigned_to", info.AssignedTo)

		c.mu.Lock()
		at, seen := c.raised[name]
		first := !seen || !at.Equal(info.StartTime)
		c.raised[name] = info.StartTime
		c.mu.Unlock()

		if first {
			req := c.raise(ctx, approval.TypeCriticalError, map[string]any{
				"description": "Workflow stage stalled: " + name,
				"details": map[string]any{
					"duration":   duration.Milliseconds(),
					"assignedTo": info.AssignedTo,
					"stageName":  name,
				},
			})
			stall.RequestID = req.ID
		}
		report.StalledStages = append(report.StalledStages, stall)
	}

	c.mu.Lock()
	// A partial status may be missing stages that are still running.
	if !ws.Partial {
		for name := range c.raised {
			if !inProgress[name] {
				delete(c.raised, name)
			}
		}
	}
	report.HumanInterventions = len(c.queue)
	c.mu.Unlock()
	return report
}

// Status is the controller's full state.
type Status struct {
	Running             bool                           `json:"isRunning"`
	ApprovalQueue       []approval.Request             `json:"humanApprovalQueue"`
	WorkflowStatus      *workflow.WorkflowStatus       `json:"workflowStatus"`
	CollaborationStatus *sharedmem.CollaborationStatus `json:"collaborationStatus"`
	ExecutionHistory    []Execution                    `json:"executionHistory"`
	Timestamp           time.Time                      `json:"timestamp"`
}

// GetOrchestrationStatus reports the controller's state together with the
// shared workflow and collaboration status. It never fails.
func (c *Controller) GetOrchestrationStatus(ctx context.Context) *Status {
	ws := c.coord.GetWorkflowStatus(ctx)
	cs := c.mem.GetCollaborationStatus(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	return &Status{
		Running:             c.running,
		ApprovalQueue:       slices.Clone(c.queue),
		WorkflowStatus:      ws,
		CollaborationStatus: cs,
		ExecutionHistory:    slices.Clone(c.history),
		Timestamp:           c.now(),
	}
}
