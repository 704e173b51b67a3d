// Package approval obtains human decisions for orchestration requests.
//
// Every way of reaching a human implements [Approver]:
//
//   - [Gate] holds requests in process until Approve or Reject is called.
//   - [SharedApprover] files requests in shared memory so the agentsync
//     approve command, run from any shell, can decide them.
//   - [PromptApprover] asks on the controlling terminal.
//   - [AutoApprover] approves everything, for development and tests.
//
// No approver waits on a fixed delay. Await blocks until a decision exists
// or its context ends.
//
// # Usage
//
//	gate := approval.NewGate()
//	go func() {
//		for _, req := range gate.Pending() {
//			_ = gate.Approve(req.ID, "operator")
//		}
//	}()
//	decision, err := gate.Await(ctx, approval.NewRequest(approval.TypeDeploymentApproval, details, time.Now()))
//
// # Thread Safety
//
// All approvers are safe for concurrent use.
package approval
