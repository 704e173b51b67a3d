package cmd

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Iron-Ham/agentsync/internal/approval"
	"github.com/Iron-Ham/agentsync/internal/config"
	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/logging"
	"github.com/Iron-Ham/agentsync/internal/metrics"
	"github.com/Iron-Ham/agentsync/internal/orchestration"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
	"github.com/Iron-Ham/agentsync/internal/store"
	"github.com/Iron-Ham/agentsync/internal/workflow"
)

// approvalNamespaceSuffix keeps approval records out of the agents' namespace
// so an emergency stop does not reject them.
const approvalNamespaceSuffix = "_approvals"

// Approver kinds accepted by --approver.
const (
	approverAuto   = "auto"
	approverPrompt = "prompt"
	approverShared = "shared"
)

// runtime is everything a command needs, built from the loaded config.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	store    store.Store
	mem      *sharedmem.Memory
	graph    *workflow.Graph
	coord    *workflow.Coordinator
	registry *prometheus.Registry
	metrics  *metrics.Collector

	group  *errgroup.Group
	cancel context.CancelFunc
}

// newRuntime loads the configuration and opens the store. Callers must
// Close the result. When metrics.addr is set the registry is served until
// Close.
func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Rotation())
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	ctx := commandContext(cmd)
	s, err := store.Open(ctx, cfg.Store.Options(cwd))
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(),
		store:    s,
		registry: prometheus.NewRegistry(),
	}
	if err := rt.init(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) init(ctx context.Context) error {
	g, err := rt.cfg.Workflow.Graph()
	if err != nil {
		return fmt.Errorf("invalid workflow graph: %w", err)
	}
	rt.graph = g

	opts := append(rt.cfg.MemoryOptions(),
		sharedmem.WithLogger(rt.logger),
		sharedmem.WithBus(rt.bus),
		sharedmem.WithRoles(g.Roles()),
	)
	if rt.mem, err = sharedmem.New(rt.store, opts...); err != nil {
		return err
	}

	rt.coord, err = workflow.NewCoordinator(g, rt.mem,
		workflow.WithLogger(rt.logger),
		workflow.WithBus(rt.bus),
		workflow.WithMaxParallel(rt.cfg.Workflow.MaxParallel),
	)
	if err != nil {
		return err
	}

	if rt.metrics, err = metrics.NewCollector(rt.cfg.Metrics.Namespace, rt.registry); err != nil {
		return err
	}
	rt.metrics.Attach(rt.bus)

	if addr := rt.cfg.Metrics.Addr; addr != "" {
		sctx, cancel := context.WithCancel(ctx)
		rt.cancel = cancel
		rt.group = &errgroup.Group{}
		rt.group.Go(func() error {
			return metrics.Serve(sctx, addr, rt.registry, func(a net.Addr) {
				rt.logger.Info("serving metrics", "addr", a.String(), "path", metrics.Path)
			})
		})
	}
	return nil
}

// Close stops the metrics endpoint and releases the store and log.
func (rt *runtime) Close() error {
	var errs []error
	if rt.cancel != nil {
		rt.cancel()
		if err := rt.group.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if rt.metrics != nil {
		rt.metrics.Detach()
	}
	if err := rt.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rt.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sharedApprover files approvals in the approval namespace of the store.
func (rt *runtime) sharedApprover() (*approval.SharedApprover, error) {
	mem, err := sharedmem.New(rt.store,
		sharedmem.WithNamespace(rt.cfg.Store.Namespace+approvalNamespaceSuffix),
		sharedmem.WithTTL(0),
		sharedmem.WithLogger(rt.logger),
		sharedmem.WithBus(rt.bus),
	)
	if err != nil {
		return nil, err
	}
	return approval.NewSharedApprover(mem, rt.cfg.Orchestration.ApprovalPollInterval)
}

// approver picks the approver for kind. An empty kind means auto when
// orchestration.auto_approve is set, a terminal prompt when stdin is a
// terminal, and shared approvals otherwise.
func (rt *runtime) approver(cmd *cobra.Command, kind string) (approval.Approver, error) {
	if kind == "" {
		switch {
		case rt.cfg.Orchestration.AutoApprove:
			kind = approverAuto
		case term.IsTerminal(int(os.Stdin.Fd())):
			kind = approverPrompt
		default:
			kind = approverShared
		}
	}

	switch kind {
	case approverAuto:
		return approval.AutoApprover{By: "auto_approve"}, nil
	case approverPrompt:
		return approval.NewPromptApprover(os.Stdin, cmd.OutOrStdout()), nil
	case approverShared:
		return rt.sharedApprover()
	default:
		return nil, fmt.Errorf("unknown approver %q (valid: %s, %s, %s)", kind, approverAuto, approverPrompt, approverShared)
	}
}

// controller builds an orchestration controller over the runtime.
func (rt *runtime) controller(cmd *cobra.Command, approverKind string) (*orchestration.Controller, error) {
	a, err := rt.approver(cmd, approverKind)
	if err != nil {
		return nil, err
	}
	return orchestration.New(rt.coord, a,
		orchestration.WithLogger(rt.logger),
		orchestration.WithBus(rt.bus),
		orchestration.WithStallThreshold(rt.cfg.Orchestration.StallThreshold),
		orchestration.WithStopConcurrency(rt.cfg.Orchestration.StopConcurrency),
	)
}

// commandContext returns the command's context, or a background one when
// the command is run outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
