package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// PromptApprover asks for each decision on an interactive terminal.
type PromptApprover struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	by          string

	// One goroutine owns in; Await receives its lines.
	readOnce sync.Once
	lines    chan string
	readErr  error
}

// NewPromptApprover prompts on out and reads answers from in. Input that is
// not a terminal makes every Await fail with ErrNonInteractive.
func NewPromptApprover(in *os.File, out io.Writer) *PromptApprover {
	return &PromptApprover{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: term.IsTerminal(int(in.Fd())),
		by:          "human_operator",
	}
}

// Await prints req and waits for a y/n answer. Anything other than y or yes
// rejects. Lines typed while no prompt was showing are discarded.
func (p *PromptApprover) Await(ctx context.Context, req Request) (Decision, error) {
	if !p.interactive {
		return Decision{}, fmt.Errorf("%w: request %s (%s)", ErrNonInteractive, req.ID, req.Type)
	}

	// One prompt at a time; concurrent requests queue here.
	p.mu.Lock()
	defer p.mu.Unlock()

	p.discardStale()
	p.render(req)
	p.readOnce.Do(p.startReader)

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return Decision{}, fmt.Errorf("read approval answer: %w", p.readErr)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return Decision{Approved: true, By: p.by, At: time.Now()}, nil
		default:
			return Decision{By: p.by, Reason: "declined at prompt", At: time.Now()}, nil
		}
	}
}

// startReader reads lines until in fails, then closes lines.
func (p *PromptApprover) startReader() {
	p.lines = make(chan string)
	go func() {
		for {
			line, err := p.in.ReadString('\n')
			if err != nil {
				p.readErr = err
				if line != "" {
					p.lines <- line
				}
				close(p.lines)
				return
			}
			p.lines <- line
		}
	}()
}

// discardStale drops a line the reader already holds. Caller holds mu.
func (p *PromptApprover) discardStale() {
	if p.lines == nil {
		return
	}
	select {
	case <-p.lines:
	default:
	}
}

func (p *PromptApprover) render(req Request) {
	kind := "Approval"
	if req.Checkpoint {
		kind = "Checkpoint"
	}
	fmt.Fprintf(p.out, "\n%s requested: %s [%s]\n", kind, req.Type, req.Priority)
	if point, ok := InterventionPoints[req.Type]; ok {
		fmt.Fprintf(p.out, "  %s\n", point)
	}
	if desc, ok := req.Context["description"]; ok {
		fmt.Fprintf(p.out, "  %v\n", desc)
	}

	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		if k != "description" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(p.out, "  %s: %v\n", k, req.Context[k])
	}
	fmt.Fprint(p.out, "Approve? [y/N] ")
}
