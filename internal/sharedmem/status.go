package sharedmem

import (
	"context"
	"time"
)

// AgentStats counts one agent's records by status.
type AgentStats struct {
	AgentID          string `json:"agentId"`
	Role             string `json:"role"`
	ActiveActions    int    `json:"activeActions"`
	CompletedActions int    `json:"completedActions"`
	StoppedActions   int    `json:"stoppedActions"`
}

// CollaborationStatus is a read-only aggregate of the namespace.
type CollaborationStatus struct {
	TotalActiveActions int                    `json:"totalActiveActions"`
	AgentStats         map[string]*AgentStats `json:"agentStats"`
	Timestamp          time.Time              `json:"timestamp"`

	// Partial is set when the store could not be read completely; the
	// counts then cover only what was read.
	Partial bool   `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
	// Skipped counts undecodable entries that were left out.
	Skipped int `json:"skipped,omitempty"`
}

// GetCollaborationStatus aggregates per-agent record counts. It never
// fails: a store error yields an empty report with Partial set.
func (m *Memory) GetCollaborationStatus(ctx context.Context) *CollaborationStatus {
	status := &CollaborationStatus{
		AgentStats: make(map[string]*AgentStats),
		Timestamp:  m.now(),
	}

	records, skipped, err := m.list(ctx, m.namespace+":")
	if err != nil {
		m.logger.Warn("collaboration status degraded", "error", err)
		status.Partial = true
		status.Error = err.Error()
		return status
	}
	status.Skipped = skipped

	for _, rec := range records {
		stats, ok := status.AgentStats[rec.AgentID]
		if !ok {
			role := rec.AgentRole
			if role == "" {
				role = m.RoleOf(rec.AgentID)
			}
			stats = &AgentStats{AgentID: rec.AgentID, Role: role}
			status.AgentStats[rec.AgentID] = stats
		}
		switch rec.Status {
		case StatusActive:
			stats.ActiveActions++
			status.TotalActiveActions++
		case StatusCompleted:
			stats.CompletedActions++
		case StatusStopped:
			stats.StoppedActions++
		}
	}
	return status
}
