package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

// ReviewerAgent is the agent ID approval requests are filed under.
const ReviewerAgent = "human"

// recordType tags approval request records.
const recordType = "approval_request"

// DefaultPollInterval is how often SharedApprover re-reads a request.
const DefaultPollInterval = time.Second

// SharedApprover keeps requests in shared memory so a reviewer in another
// process can decide them. A pending request is an active record; approval
// completes it and rejection stops it.
//
// Give it a Memory whose namespace is not used for agent work, or an
// emergency stop will reject every pending request along with the agents'
// actions.
type SharedApprover struct {
	mem  *sharedmem.Memory
	poll time.Duration
}

// NewSharedApprover creates a SharedApprover. A non-positive poll means
// DefaultPollInterval.
func NewSharedApprover(mem *sharedmem.Memory, poll time.Duration) (*SharedApprover, error) {
	if mem == nil {
		return nil, errors.New("approval: shared memory is required")
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &SharedApprover{mem: mem, poll: poll}, nil
}

// Submit files req without waiting for a decision.
func (a *SharedApprover) Submit(ctx context.Context, req Request) error {
	_, err := a.mem.SetAction(ctx, ReviewerAgent, req.ID, map[string]any{
		"type":        recordType,
		"requestType": req.Type,
		"priority":    string(req.Priority),
		"checkpoint":  req.Checkpoint,
		"context":     req.Context,
		"requestedAt": req.RequestedAt.UnixMilli(),
	})
	return err
}

// Await files req and polls until it is decided or ctx ends. A request that
// disappears (expired or cleaned up) fails with a NotFoundError.
func (a *SharedApprover) Await(ctx context.Context, req Request) (Decision, error) {
	if err := a.Submit(ctx, req); err != nil {
		return Decision{}, err
	}

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()
	for {
		d, done, err := a.check(ctx, req.ID)
		if err != nil || done {
			return d, err
		}
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *SharedApprover) check(ctx context.Context, id string) (Decision, bool, error) {
	rec, err := a.mem.GetAction(ctx, ReviewerAgent, id)
	if err != nil {
		return Decision{}, false, err
	}
	if rec == nil {
		return Decision{}, false, errors.NewNotFoundError("approval request", id)
	}
	switch rec.Status {
	case sharedmem.StatusCompleted:
		d := Decision{Approved: true, At: rec.CompletedAt}
		var result struct {
			ApprovedBy string `json:"approvedBy"`
		}
		if len(rec.Result) > 0 && json.Unmarshal(rec.Result, &result) == nil {
			d.By = result.ApprovedBy
		}
		return d, true, nil
	case sharedmem.StatusStopped:
		return Decision{Reason: rec.StopReason, At: rec.StoppedAt}, true, nil
	default:
		return Decision{}, false, nil
	}
}

// Approve decides a pending request as approved.
func (a *SharedApprover) Approve(ctx context.Context, id, by string) error {
	if err := a.requirePending(ctx, id); err != nil {
		return err
	}
	_, err := a.mem.CompleteAction(ctx, ReviewerAgent, id, map[string]any{"approvedBy": by})
	return err
}

// Reject decides a pending request as rejected.
func (a *SharedApprover) Reject(ctx context.Context, id, reason string) error {
	if err := a.requirePending(ctx, id); err != nil {
		return err
	}
	_, err := a.mem.StopAction(ctx, ReviewerAgent, id, reason)
	return err
}

func (a *SharedApprover) requirePending(ctx context.Context, id string) error {
	rec, err := a.mem.GetAction(ctx, ReviewerAgent, id)
	if err != nil {
		return err
	}
	if rec == nil || rec.Type != recordType || rec.Status != sharedmem.StatusActive {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	return nil
}

// Pending lists undecided requests, most urgent first.
func (a *SharedApprover) Pending(ctx context.Context) ([]Request, error) {
	records, err := a.mem.GetAgentActions(ctx, ReviewerAgent)
	if err != nil {
		return nil, err
	}

	reqs := make([]Request, 0, len(records))
	for _, rec := range records {
		if rec.Type != recordType || rec.Status != sharedmem.StatusActive {
			continue
		}
		req := Request{
			ID:          rec.ActionID,
			Type:        rec.PayloadString("requestType"),
			Priority:    Priority(rec.PayloadString("priority")),
			Status:      StatusPending,
			Checkpoint:  cast.ToBool(rec.Payload["checkpoint"]),
			RequestedAt: rec.Timestamp,
		}
		if req.Checkpoint {
			req.Status = StatusWaiting
		}
		if ctxMap, ok := rec.Payload["context"].(map[string]any); ok {
			req.Context = ctxMap
		}
		if ms := cast.ToInt64(rec.Payload["requestedAt"]); ms > 0 {
			req.RequestedAt = time.UnixMilli(ms)
		}
		reqs = append(reqs, req)
	}
	SortRequests(reqs)
	return reqs, nil
}
