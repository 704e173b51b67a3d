package approval

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

// Sentinel errors returned by approvers.
var (
	ErrNotPending     = errors.New("approval request is not pending")
	ErrNonInteractive = errors.New("approval requires an interactive terminal")
)

// Priority orders pending requests for a human reviewer.
type Priority string

// Priorities, lowest first.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns a sortable weight; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Well-known request types.
const (
	TypeWorkflowInitiation = "workflow_initiation"
	TypeDeploymentApproval = "deployment_approval"
	TypeArchitectureChange = "architecture_change"
	TypeCriticalError      = "critical_error"
	TypeTaskAssignment     = "task_assignment"
)

// InterventionPoints describes when a human is expected to step in.
var InterventionPoints = map[string]string{
	TypeTaskAssignment:     "Human approval required for task assignment",
	TypeCriticalError:      "Human intervention needed for critical errors",
	TypeDeploymentApproval: "Human approval required for production deployment",
	TypeArchitectureChange: "Human review required for architecture changes",
}

// PriorityFor maps a request type to its priority. Unknown types are low.
func PriorityFor(requestType string) Priority {
	switch requestType {
	case TypeWorkflowInitiation:
		return PriorityMedium
	case TypeDeploymentApproval, TypeCriticalError:
		return PriorityCritical
	case TypeArchitectureChange:
		return PriorityHigh
	default:
		return PriorityLow
	}
}

// Status is the state of a request.
type Status string

// Request statuses. Checkpoints start waiting rather than pending.
const (
	StatusPending  Status = "pending"
	StatusWaiting  Status = "waiting"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request asks a human to approve a decision or review a checkpoint.
type Request struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Priority    Priority       `json:"priority"`
	Status      Status         `json:"status"`
	Checkpoint  bool           `json:"checkpoint,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
	ResolvedAt  time.Time      `json:"resolvedAt,omitzero"`
	ResolvedBy  string         `json:"resolvedBy,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// NewRequest builds a pending approval request with a fresh ID.
func NewRequest(requestType string, details map[string]any, now time.Time) Request {
	return Request{
		ID:          "approval_" + uuid.NewString(),
		Type:        requestType,
		Priority:    PriorityFor(requestType),
		Status:      StatusPending,
		Context:     details,
		RequestedAt: now,
	}
}

// NewCheckpoint builds a waiting checkpoint review with a fresh ID.
func NewCheckpoint(checkpointType string, details map[string]any, now time.Time) Request {
	return Request{
		ID:          "checkpoint_" + uuid.NewString(),
		Type:        checkpointType,
		Priority:    PriorityFor(checkpointType),
		Status:      StatusWaiting,
		Checkpoint:  true,
		Context:     details,
		RequestedAt: now,
	}
}

// Resolve records d on the request.
func (r *Request) Resolve(d Decision) {
	r.Status = StatusRejected
	if d.Approved {
		r.Status = StatusApproved
	}
	r.ResolvedAt = d.At
	r.ResolvedBy = d.By
	r.Reason = d.Reason
}

// Decision is a human's answer to a request.
type Decision struct {
	Approved bool      `json:"approved"`
	By       string    `json:"by,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Approver obtains a decision for a request, blocking until one is made or
// ctx ends.
type Approver interface {
	Await(ctx context.Context, req Request) (Decision, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req Request) (Decision, error)

// Await calls f.
func (f ApproverFunc) Await(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// SortRequests orders requests most urgent first, then oldest first.
func SortRequests(reqs []Request) {
	slices.SortStableFunc(reqs, func(a, b Request) int {
		if d := b.Priority.Rank() - a.Priority.Rank(); d != 0 {
			return d
		}
		return a.RequestedAt.Compare(b.RequestedAt)
	})
}
