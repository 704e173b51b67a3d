package event

import (
	"testing"
	"time"
)

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{NewActionSetEvent("kilo", "a1", "task"), TypeActionSet},
		{NewActionCompletedEvent("kilo", "a1"), TypeActionCompleted},
		{NewActionStoppedEvent("kilo", "a1", "halt"), TypeActionStopped},
		{NewCleanupEvent(3, 1, 0), TypeActionCleanup},
		{NewDependencyWaitEvent("kilo", "a1", WaitSatisfied, time.Second, 2), TypeDependencyWait},
		{NewStageStartedEvent("frontend_development", "kilo"), TypeStageStarted},
		{NewStageBlockedEvent("backend_integration", "frontend_development"), TypeStageBlocked},
		{NewStageCompletedEvent("frontend_development", "kilo"), TypeStageCompleted},
		{NewApprovalRequestedEvent("r1", "critical_error", "critical", false), TypeApprovalRequested},
		{NewApprovalResolvedEvent("r1", "critical_error", true, "ops", ""), TypeApprovalResolved},
		{NewEmergencyStopEvent("halt", 2, 0), TypeEmergencyStop},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
			if tt.event.Timestamp().IsZero() {
				t.Error("Timestamp() should be set")
			}
		})
	}
}
