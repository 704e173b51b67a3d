// Package orchestration keeps a human in the loop while agents work through
// the stage graph.
//
// A Controller wraps a workflow.Coordinator and an approval.Approver. It
// blocks on the approver for approvals and checkpoints, escalates stalled
// stages, and can stop every active action at once. Escalations and the
// emergency stop's critical request are raised without waiting for a
// decision, so neither path can hang on a human.
//
// The approval queue and execution history are held in memory by the
// Controller. Action records, stage state, and approvals filed through an
// approval.SharedApprover live in the shared store.
package orchestration
