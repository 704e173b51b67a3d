package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "action.completed", "stage.started")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeActionSet         = "action.set"
	TypeActionCompleted   = "action.completed"
	TypeActionStopped     = "action.stopped"
	TypeActionCleanup     = "action.cleanup"
	TypeDependencyWait    = "dependency.wait"
	TypeStageStarted      = "stage.started"
	TypeStageBlocked      = "stage.blocked"
	TypeStageCompleted    = "stage.completed"
	TypeApprovalRequested = "approval.requested"
	TypeApprovalResolved  = "approval.resolved"
	TypeEmergencyStop     = "emergency.stop"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Action Record Events
// -----------------------------------------------------------------------------

// ActionSetEvent is emitted after an action record is created or overwritten.
type ActionSetEvent struct {
	baseEvent
	AgentID    string
	ActionID   string
	ActionType string // Caller-defined "type" tag, may be empty
}

// NewActionSetEvent creates an ActionSetEvent.
func NewActionSetEvent(agentID, actionID, actionType string) ActionSetEvent {
	return ActionSetEvent{
		baseEvent:  newBaseEvent(TypeActionSet),
		AgentID:    agentID,
		ActionID:   actionID,
		ActionType: actionType,
	}
}

// ActionCompletedEvent is emitted after an action record moves to completed.
type ActionCompletedEvent struct {
	baseEvent
	AgentID  string
	ActionID string
}

// NewActionCompletedEvent creates an ActionCompletedEvent.
func NewActionCompletedEvent(agentID, actionID string) ActionCompletedEvent {
	return ActionCompletedEvent{
		baseEvent: newBaseEvent(TypeActionCompleted),
		AgentID:   agentID,
		ActionID:  actionID,
	}
}

// ActionStoppedEvent is emitted after an active record is stopped.
type ActionStoppedEvent struct {
	baseEvent
	AgentID  string
	ActionID string
	Reason   string
}

// NewActionStoppedEvent creates an ActionStoppedEvent.
func NewActionStoppedEvent(agentID, actionID, reason string) ActionStoppedEvent {
	return ActionStoppedEvent{
		baseEvent: newBaseEvent(TypeActionStopped),
		AgentID:   agentID,
		ActionID:  actionID,
		Reason:    reason,
	}
}

// CleanupEvent is emitted when a garbage-collection sweep finishes.
type CleanupEvent struct {
	baseEvent
	Scanned int // Entries read from the namespace
	Deleted int // Records removed
	Skipped int // Entries that could not be decoded
}

// NewCleanupEvent creates a CleanupEvent.
func NewCleanupEvent(scanned, deleted, skipped int) CleanupEvent {
	return CleanupEvent{
		baseEvent: newBaseEvent(TypeActionCleanup),
		Scanned:   scanned,
		Deleted:   deleted,
		Skipped:   skipped,
	}
}

// Outcomes reported by DependencyWaitEvent.
const (
	WaitSatisfied = "satisfied"
	WaitTimedOut  = "timeout"
	WaitCanceled  = "canceled"
	WaitFailed    = "error"
)

// DependencyWaitEvent is emitted when a dependency wait ends, whatever the outcome.
type DependencyWaitEvent struct {
	baseEvent
	AgentID  string
	ActionID string
	Outcome  string // One of the Wait* constants
	Waited   time.Duration
	Polls    int
}

// NewDependencyWaitEvent creates a DependencyWaitEvent.
func NewDependencyWaitEvent(agentID, actionID, outcome string, waited time.Duration, polls int) DependencyWaitEvent {
	return DependencyWaitEvent{
		baseEvent: newBaseEvent(TypeDependencyWait),
		AgentID:   agentID,
		ActionID:  actionID,
		Outcome:   outcome,
		Waited:    waited,
		Polls:     polls,
	}
}

// -----------------------------------------------------------------------------
// Workflow Stage Events
// -----------------------------------------------------------------------------

// StageStartedEvent is emitted when a stage passes its dependency gate.
type StageStartedEvent struct {
	baseEvent
	Stage   string
	AgentID string
}

// NewStageStartedEvent creates a StageStartedEvent.
func NewStageStartedEvent(stage, agentID string) StageStartedEvent {
	return StageStartedEvent{
		baseEvent: newBaseEvent(TypeStageStarted),
		Stage:     stage,
		AgentID:   agentID,
	}
}

// StageBlockedEvent is emitted when a stage start is refused because a
// dependency has not completed.
type StageBlockedEvent struct {
	baseEvent
	Stage      string
	Dependency string
}

// NewStageBlockedEvent creates a StageBlockedEvent.
func NewStageBlockedEvent(stage, dependency string) StageBlockedEvent {
	return StageBlockedEvent{
		baseEvent:  newBaseEvent(TypeStageBlocked),
		Stage:      stage,
		Dependency: dependency,
	}
}

// StageCompletedEvent is emitted when the owning agent completes a stage.
type StageCompletedEvent struct {
	baseEvent
	Stage   string
	AgentID string
}

// NewStageCompletedEvent creates a StageCompletedEvent.
func NewStageCompletedEvent(stage, agentID string) StageCompletedEvent {
	return StageCompletedEvent{
		baseEvent: newBaseEvent(TypeStageCompleted),
		Stage:     stage,
		AgentID:   agentID,
	}
}

// -----------------------------------------------------------------------------
// Human-in-the-loop Events
// -----------------------------------------------------------------------------

// ApprovalRequestedEvent is emitted when an approval request or checkpoint
// starts waiting on a human.
type ApprovalRequestedEvent struct {
	baseEvent
	RequestID    string
	RequestType  string
	Priority     string
	IsCheckpoint bool
}

// NewApprovalRequestedEvent creates an ApprovalRequestedEvent.
func NewApprovalRequestedEvent(requestID, requestType, priority string, checkpoint bool) ApprovalRequestedEvent {
	return ApprovalRequestedEvent{
		baseEvent:    newBaseEvent(TypeApprovalRequested),
		RequestID:    requestID,
		RequestType:  requestType,
		Priority:     priority,
		IsCheckpoint: checkpoint,
	}
}

// ApprovalResolvedEvent is emitted when a pending request is approved or rejected.
type ApprovalResolvedEvent struct {
	baseEvent
	RequestID   string
	RequestType string
	Approved    bool
	By          string // Approver identity, empty when rejected
	Reason      string // Rejection reason, empty when approved
}

// NewApprovalResolvedEvent creates an ApprovalResolvedEvent.
func NewApprovalResolvedEvent(requestID, requestType string, approved bool, by, reason string) ApprovalResolvedEvent {
	return ApprovalResolvedEvent{
		baseEvent:   newBaseEvent(TypeApprovalResolved),
		RequestID:   requestID,
		RequestType: requestType,
		Approved:    approved,
		By:          by,
		Reason:      reason,
	}
}

// EmergencyStopEvent is emitted after an emergency stop sweep.
type EmergencyStopEvent struct {
	baseEvent
	Reason  string
	Stopped int
	Failed  int
}

// NewEmergencyStopEvent creates an EmergencyStopEvent.
func NewEmergencyStopEvent(reason string, stopped, failed int) EmergencyStopEvent {
	return EmergencyStopEvent{
		baseEvent: newBaseEvent(TypeEmergencyStop),
		Reason:    reason,
		Stopped:   stopped,
		Failed:    failed,
	}
}
