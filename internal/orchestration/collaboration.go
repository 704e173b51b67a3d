package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/agentsync/internal/approval"
	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/workflow"
)

// Phase is a group of stages run back to back, optionally followed by a
// human checkpoint.
type Phase struct {
	Name         string   `json:"name"`
	Stages       []string `json:"stages"`
	Checkpoint   string   `json:"checkpoint,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
}

// Plan is the shape of a full collaboration run.
type Plan struct {
	Phases []Phase
	// StageTimeout bounds the wait for each stage. Zero means the shared
	// memory default.
	StageTimeout time.Duration
}

// DefaultPlan runs frontend, then backend, then testing and validation,
// with a checkpoint after each of the first two phases.
func DefaultPlan() Plan {
	return Plan{
		Phases: []Phase{
			{
				Name:         "frontend",
				Stages:       []string{"frontend_development"},
				Checkpoint:   "frontend_completion",
				Deliverables: []string{"React interface", "Real-time dashboard", "Mobile responsive design"},
			},
			{
				Name:         "backend",
				Stages:       []string{"backend_integration"},
				Checkpoint:   "backend_completion",
				Deliverables: []string{"API enhancement", "Database integration", "Mobile SDK"},
			},
			{
				Name:   "testing_and_validation",
				Stages: []string{"testing_and_fixations", "validation_and_reviewing"},
			},
		},
	}
}

// InitializeSharedMemory writes the completed system:initialization record
// listing the roster.
func (c *Controller) InitializeSharedMemory(ctx context.Context) error {
	agents := c.coord.Graph().AgentIDs()
	if _, err := c.mem.SetAction(ctx, "system", "initialization", map[string]any{
		"type":   "system_initialization",
		"agents": agents,
	}); err != nil {
		c.logger.Error("failed to initialize shared memory", "error", err)
		return err
	}
	if _, err := c.mem.CompleteAction(ctx, "system", "initialization", map[string]any{"workflow": "initialized"}); err != nil {
		c.logger.Error("failed to initialize shared memory", "error", err)
		return err
	}
	c.logger.Info("shared memory initialized", "agents", len(agents))
	return nil
}

// StartCollaborationWorkflow runs plan under human oversight: initialize
// shared memory, obtain approval to start, run each phase with its
// checkpoint, and finally obtain deployment approval. The results of every
// completed stage are returned, also on failure. An emergency stop between
// phases ends the run with ErrCanceled.
func (c *Controller) StartCollaborationWorkflow(ctx context.Context, plan Plan) ([]workflow.StageResult, error) {
	c.setRunning(true)
	defer c.setRunning(false)

	c.logger.Info("starting collaboration workflow with human oversight", "phases", len(plan.Phases))
	results, err := c.runPlan(ctx, plan)
	if err != nil {
		c.logger.Error("collaboration workflow failed", "error", err, "completed_stages", len(results))
		c.RecordExecution("collaboration_workflow", map[string]any{"success": false, "error": err.Error()})
		return results, err
	}

	c.logger.Info("collaboration workflow completed", "completed_stages", len(results))
	c.RecordExecution("collaboration_workflow", map[string]any{"success": true, "stages": len(results)})
	return results, nil
}

func (c *Controller) runPlan(ctx context.Context, plan Plan) ([]workflow.StageResult, error) {
	if err := c.InitializeSharedMemory(ctx); err != nil {
		return nil, err
	}

	if _, err := c.RequestHumanApproval(ctx, approval.TypeWorkflowInitiation, map[string]any{
		"description": "Approve AI collaboration workflow initiation",
		"details": map[string]any{
			"agents":   c.coord.Graph().AgentIDs(),
			"workflow": "sequential_development",
			"phases":   len(plan.Phases),
		},
	}); err != nil {
		return nil, err
	}

	var results []workflow.StageResult
	for _, phase := range plan.Phases {
		if !c.IsRunning() {
			return results, fmt.Errorf("phase %s: workflow stopped: %w", phase.Name, errors.ErrCanceled)
		}

		c.logger.Info("executing workflow phase", "phase", phase.Name, "stages", len(phase.Stages))
		phaseResults, err := c.coord.ExecuteSequentialWorkflow(ctx, phase.Stages, plan.StageTimeout)
		results = append(results, phaseResults...)
		c.RecordExecution("phase:"+phase.Name, phaseResults)
		if err != nil {
			return results, fmt.Errorf("phase %s: %w", phase.Name, err)
		}

		if phase.Checkpoint != "" {
			if _, err := c.WaitForHumanCheckpoint(ctx, phase.Checkpoint, map[string]any{
				"description":  fmt.Sprintf("Review %s results", phase.Name),
				"deliverables": phase.Deliverables,
			}); err != nil {
				return results, err
			}
		}
	}

	if !c.IsRunning() {
		return results, fmt.Errorf("deployment approval: workflow stopped: %w", errors.ErrCanceled)
	}
	if _, err := c.RequestHumanApproval(ctx, approval.TypeDeploymentApproval, map[string]any{
		"description": "Final approval for production deployment",
		"details": map[string]any{
			"stages": len(results),
		},
	}); err != nil {
		return results, err
	}
	return results, nil
}
