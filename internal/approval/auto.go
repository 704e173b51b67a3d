package approval

import (
	"context"
	"time"
)

// AutoApprover approves every request immediately. It is meant for
// development and tests.
type AutoApprover struct {
	// By is recorded as the approver. Defaults to "auto".
	By string
}

// Await approves req unless ctx has already ended.
func (a AutoApprover) Await(ctx context.Context, _ Request) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	by := a.By
	if by == "" {
		by = "auto"
	}
	return Decision{Approved: true, By: by, At: time.Now()}, nil
}
