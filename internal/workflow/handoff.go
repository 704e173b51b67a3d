package workflow

import (
	"context"
	"maps"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

// Handoff states kept in the record payload under "handoffStatus".
const (
	HandoffPending  = "pending"
	HandoffAccepted = "accepted"
)

// HandoffActionID returns the action ID of a handoff for taskID. Handoffs
// are stored under the receiving agent.
func HandoffActionID(taskID string) string {
	return "handoff_" + taskID
}

// CreateTaskHandoff records that fromAgent passes taskID to toAgent along
// with free-form context.
func (c *Coordinator) CreateTaskHandoff(ctx context.Context, fromAgent, toAgent, taskID string, handoffContext map[string]any) (*sharedmem.Record, error) {
	for _, id := range []string{fromAgent, toAgent} {
		if _, ok := c.graph.Agent(id); !ok {
			return nil, errors.NewCoordinatorError("unknown agent", errors.ErrUnknownAgent).
				WithAgent(id).WithAction(taskID)
		}
	}

	rec, err := c.mem.SetAction(ctx, toAgent, HandoffActionID(taskID), map[string]any{
		"type":          TypeTaskHandoff,
		"fromAgent":     fromAgent,
		"toAgent":       toAgent,
		"taskId":        taskID,
		"context":       handoffContext,
		"handoffTime":   c.mem.Now().UnixMilli(),
		"handoffStatus": HandoffPending,
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithAgent(toAgent).WithAction(taskID).Info("task handoff created", "from", fromAgent)
	return rec, nil
}

// AcceptTaskHandoff marks a pending handoff to agentID as accepted.
func (c *Coordinator) AcceptTaskHandoff(ctx context.Context, agentID, taskID string) (*sharedmem.Record, error) {
	actionID := HandoffActionID(taskID)
	rec, err := c.mem.GetAction(ctx, agentID, actionID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Type != TypeTaskHandoff {
		return nil, errors.NewNotFoundError("handoff", taskID)
	}

	payload := maps.Clone(rec.Payload)
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["type"] = TypeTaskHandoff
	payload["handoffStatus"] = HandoffAccepted
	payload["acceptedTime"] = c.mem.Now().UnixMilli()

	accepted, err := c.mem.SetAction(ctx, agentID, actionID, payload)
	if err != nil {
		return nil, err
	}
	c.logger.WithAgent(agentID).WithAction(taskID).Info("task handoff accepted", "from", rec.PayloadString("fromAgent"))
	return accepted, nil
}
