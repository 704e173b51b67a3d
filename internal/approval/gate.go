package approval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pendingApproval is a request held by the gate until a decision arrives.
type pendingApproval struct {
	req      Request
	decision chan Decision
}

// Gate is an in-process Approver whose decisions come from explicit
// Approve and Reject calls, typically made by another goroutine serving a
// human interface.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	now     func() time.Time
}

// NewGate creates an empty Gate.
func NewGate() *Gate {
	return &Gate{
		pending: make(map[string]*pendingApproval),
		now:     time.Now,
	}
}

// Await holds req as pending until it is approved, rejected, or ctx ends.
// A request that ends with ctx is withdrawn.
func (g *Gate) Await(ctx context.Context, req Request) (Decision, error) {
	g.mu.Lock()
	if _, dup := g.pending[req.ID]; dup {
		g.mu.Unlock()
		return Decision{}, fmt.Errorf("approval request %s is already pending", req.ID)
	}
	p := &pendingApproval{req: req, decision: make(chan Decision, 1)}
	g.pending[req.ID] = p
	g.mu.Unlock()

	select {
	case d := <-p.decision:
		return d, nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
		return Decision{}, ctx.Err()
	}
}

// Approve resolves a pending request as approved.
func (g *Gate) Approve(id, by string) error {
	return g.resolve(id, Decision{Approved: true, By: by})
}

// Reject resolves a pending request as rejected.
func (g *Gate) Reject(id, reason string) error {
	return g.resolve(id, Decision{Reason: reason})
}

func (g *Gate) resolve(id string, d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPending, id)
	}
	delete(g.pending, id)
	d.At = g.now()
	p.decision <- d
	return nil
}

// Pending returns the requests awaiting a decision, most urgent first.
// The returned slice is a copy and safe to modify.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	reqs := make([]Request, 0, len(g.pending))
	for _, p := range g.pending {
		reqs = append(reqs, p.req)
	}
	g.mu.Unlock()

	SortRequests(reqs)
	return reqs
}

// IsPending reports whether id is awaiting a decision.
func (g *Gate) IsPending(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.pending[id]
	return ok
}
