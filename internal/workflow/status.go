package workflow

import (
	"context"
	"time"

	"github.com/spf13/cast"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

// recentActionLimit bounds GetAgentStatus.RecentActions.
const recentActionLimit = 5

// StageStatus is one stage's view in a workflow report.
type StageStatus struct {
	AssignedTo string     `json:"assignedTo"`
	Status     StageState `json:"status"`
	Progress   int        `json:"progress"`
	StartTime  time.Time  `json:"startTime"`
}

// AgentWorkload counts one agent's records.
type AgentWorkload struct {
	ActiveTasks    int `json:"activeTasks"`
	CompletedTasks int `json:"completedTasks"`
}

// WorkflowStatus is a read-only snapshot of stage and agent progress.
type WorkflowStatus struct {
	Stages    map[string]StageStatus    `json:"stages"`
	Agents    map[string]*AgentWorkload `json:"agents"`
	Timestamp time.Time                 `json:"timestamp"`

	Partial bool   `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AgentStatus is the roster entry of one agent plus its recent activity.
type AgentStatus struct {
	Agent
	ActiveTasks    int                 `json:"activeTasks"`
	CompletedTasks int                 `json:"completedTasks"`
	RecentActions  []*sharedmem.Record `json:"recentActions"`
}

// GetWorkflowStatus reports every stage that has a record and per-agent
// task counts for the roster. It never fails; a store error yields a
// partial report.
func (c *Coordinator) GetWorkflowStatus(ctx context.Context) *WorkflowStatus {
	status := &WorkflowStatus{
		Stages:    make(map[string]StageStatus),
		Agents:    make(map[string]*AgentWorkload, len(c.graph.Agents)),
		Timestamp: c.mem.Now(),
	}
	for _, id := range c.graph.AgentIDs() {
		status.Agents[id] = &AgentWorkload{}
	}

	records, err := c.mem.GetAllActions(ctx)
	if err != nil {
		c.logger.Warn("workflow status degraded", "error", err)
		status.Partial = true
		status.Error = err.Error()
		return status
	}

	for _, rec := range records {
		if w, ok := status.Agents[rec.AgentID]; ok {
			switch rec.Status {
			case sharedmem.StatusActive:
				w.ActiveTasks++
			case sharedmem.StatusCompleted:
				w.CompletedTasks++
			}
		}

		if rec.Type != TypeWorkflowStage {
			continue
		}
		name := rec.PayloadString("stageName")
		if name == "" {
			continue
		}
		st := StageStatus{
			AssignedTo: rec.PayloadString("assignedTo"),
			Status:     stateOf(rec),
			Progress:   cast.ToInt(rec.Payload["progress"]),
			StartTime:  rec.Timestamp,
		}
		if ms := cast.ToInt64(rec.Payload["startTime"]); ms > 0 {
			st.StartTime = time.UnixMilli(ms)
		}
		status.Stages[name] = st
	}
	return status
}

// GetAgentStatus returns roster information and the agent's most recent
// actions, newest last.
func (c *Coordinator) GetAgentStatus(ctx context.Context, agentID string) (*AgentStatus, error) {
	agent, ok := c.graph.Agent(agentID)
	if !ok {
		return nil, errors.NewCoordinatorError("unknown agent", errors.ErrUnknownAgent).WithAgent(agentID)
	}

	records, err := c.mem.GetAgentActions(ctx, agentID)
	if err != nil {
		return nil, err
	}

	status := &AgentStatus{Agent: agent}
	for _, rec := range records {
		switch rec.Status {
		case sharedmem.StatusActive:
			status.ActiveTasks++
		case sharedmem.StatusCompleted:
			status.CompletedTasks++
		}
	}
	if len(records) > recentActionLimit {
		records = records[len(records)-recentActionLimit:]
	}
	status.RecentActions = records
	return status, nil
}
