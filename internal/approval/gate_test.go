package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// awaitAsync runs gate.Await in a goroutine and returns a channel with the
// outcome.
type awaitResult struct {
	decision Decision
	err      error
}

func awaitAsync(ctx context.Context, g *Gate, req Request) <-chan awaitResult {
	ch := make(chan awaitResult, 1)
	go func() {
		d, err := g.Await(ctx, req)
		ch <- awaitResult{d, err}
	}()
	return ch
}

// waitPending blocks until id is registered with the gate.
func waitPending(t *testing.T, g *Gate, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !g.IsPending(id) {
		if time.Now().After(deadline) {
			t.Fatalf("request %s never became pending", id)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGate_Approve(t *testing.T) {
	g := NewGate()
	req := NewRequest(TypeDeploymentApproval, map[string]any{"target": "prod"}, time.Now())

	done := awaitAsync(context.Background(), g, req)
	waitPending(t, g, req.ID)

	if err := g.Approve(req.ID, "alice"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Await: %v", res.err)
		}
		if !res.decision.Approved || res.decision.By != "alice" || res.decision.At.IsZero() {
			t.Errorf("decision = %+v", res.decision)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after approval")
	}

	if g.IsPending(req.ID) {
		t.Error("request should no longer be pending")
	}
}

func TestGate_Reject(t *testing.T) {
	g := NewGate()
	req := NewRequest(TypeArchitectureChange, nil, time.Now())

	done := awaitAsync(context.Background(), g, req)
	waitPending(t, g, req.ID)

	if err := g.Reject(req.ID, "too risky"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	res := <-done
	if res.err != nil || res.decision.Approved || res.decision.Reason != "too risky" {
		t.Errorf("result = %+v, %v", res.decision, res.err)
	}
}

func TestGate_NotPending(t *testing.T) {
	g := NewGate()

	if err := g.Approve("missing", "alice"); !errors.Is(err, ErrNotPending) {
		t.Errorf("Approve(missing) = %v, want ErrNotPending", err)
	}
	if err := g.Reject("missing", "no"); !errors.Is(err, ErrNotPending) {
		t.Errorf("Reject(missing) = %v, want ErrNotPending", err)
	}

	req := NewRequest(TypeCriticalError, nil, time.Now())
	done := awaitAsync(context.Background(), g, req)
	waitPending(t, g, req.ID)
	_ = g.Approve(req.ID, "alice")
	<-done

	if err := g.Approve(req.ID, "bob"); !errors.Is(err, ErrNotPending) {
		t.Errorf("second Approve = %v, want ErrNotPending", err)
	}
}

func TestGate_ContextWithdrawsRequest(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	req := NewRequest(TypeWorkflowInitiation, nil, time.Now())

	done := awaitAsync(ctx, g, req)
	waitPending(t, g, req.ID)
	cancel()

	res := <-done
	if !errors.Is(res.err, context.Canceled) {
		t.Errorf("Await error = %v, want context.Canceled", res.err)
	}
	if g.IsPending(req.ID) {
		t.Error("canceled request should be withdrawn")
	}
	if err := g.Approve(req.ID, "alice"); !errors.Is(err, ErrNotPending) {
		t.Errorf("Approve after withdrawal = %v, want ErrNotPending", err)
	}
}

func TestGate_DuplicateID(t *testing.T) {
	g := NewGate()
	req := NewRequest(TypeCriticalError, nil, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = awaitAsync(ctx, g, req)
	waitPending(t, g, req.ID)

	if _, err := g.Await(context.Background(), req); err == nil {
		t.Error("awaiting a duplicate id should fail")
	}
}

func TestGate_PendingOrder(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := time.Now()
	reqs := []Request{
		NewRequest("lint_fix", nil, base),
		NewRequest(TypeWorkflowInitiation, nil, base.Add(time.Second)),
		NewRequest(TypeCriticalError, nil, base.Add(2*time.Second)),
		NewRequest(TypeDeploymentApproval, nil, base.Add(time.Second)),
		NewRequest(TypeArchitectureChange, nil, base),
	}
	for _, r := range reqs {
		_ = awaitAsync(ctx, g, r)
		waitPending(t, g, r.ID)
	}

	pending := g.Pending()
	want := []string{TypeDeploymentApproval, TypeCriticalError, TypeArchitectureChange, TypeWorkflowInitiation, "lint_fix"}
	if len(pending) != len(want) {
		t.Fatalf("pending = %d, want %d", len(pending), len(want))
	}
	for i, w := range want {
		if pending[i].Type != w {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].Type, w)
		}
	}
}

func TestGate_ConcurrentDecisions(t *testing.T) {
	g := NewGate()
	const n = 20

	var wg sync.WaitGroup
	results := make([]awaitResult, n)
	ids := make([]string, n)
	for i := range n {
		req := NewRequest(TypeTaskAssignment, nil, time.Now())
		ids[i] = req.ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Await(context.Background(), req)
			results[i] = awaitResult{d, err}
		}()
	}
	for i := range n {
		waitPending(t, g, ids[i])
		if i%2 == 0 {
			_ = g.Approve(ids[i], "op")
		} else {
			_ = g.Reject(ids[i], "no")
		}
	}
	wg.Wait()

	for i, r := range results {
		if r.err != nil {
			t.Errorf("request %d: %v", i, r.err)
		}
		if r.decision.Approved != (i%2 == 0) {
			t.Errorf("request %d approved = %v", i, r.decision.Approved)
		}
	}
}
