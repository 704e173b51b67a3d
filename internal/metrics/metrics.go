package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/event"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

// DefaultNamespace prefixes every metric name when none is given.
const DefaultNamespace = "agentsync"

// Collector turns coordination events into Prometheus series.
type Collector struct {
	actions        *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	cleanupSkipped prometheus.Counter
	waits          *prometheus.CounterVec
	waitDuration   *prometheus.HistogramVec
	stages         *prometheus.CounterVec
	approvals      *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	emergencyStops prometheus.Counter
	stoppedByStop  prometheus.Counter
	activeActions  *prometheus.GaugeVec
	stalledStages  prometheus.Gauge

	mu    sync.Mutex
	bus   *event.Bus
	subID string
}

// NewCollector creates the collectors and registers them on reg. A nil reg
// means prometheus.DefaultRegisterer. Collectors already registered under the
// same name are reused, so two Collectors on one registry share series.
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{}
	var err error
	if c.actions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Action record transitions by kind (set, completed, stopped).",
	}, []string{"transition"})); err != nil {
		return nil, err
	}
	if c.cleanupDeleted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_deleted_total",
		Help:      "Records removed by garbage-collection sweeps.",
	})); err != nil {
		return nil, err
	}
	if c.cleanupSkipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_skipped_total",
		Help:      "Undecodable entries skipped by garbage-collection sweeps.",
	})); err != nil {
		return nil, err
	}
	if c.waits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dependency_waits_total",
		Help:      "Finished dependency waits by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.waitDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dependency_wait_duration_seconds",
		Help:      "Time spent waiting on a dependency.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.stages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_transitions_total",
		Help:      "Stage starts, blocks and completions.",
	}, []string{"stage", "transition"})); err != nil {
		return nil, err
	}
	if c.approvals, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approvals_requested_total",
		Help:      "Approval requests and checkpoints raised.",
	}, []string{"type", "priority"})); err != nil {
		return nil, err
	}
	if c.resolutions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approvals_resolved_total",
		Help:      "Approval decisions by type and outcome.",
	}, []string{"type", "decision"})); err != nil {
		return nil, err
	}
	if c.emergencyStops, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emergency_stops_total",
		Help:      "Emergency stops triggered.",
	})); err != nil {
		return nil, err
	}
	if c.stoppedByStop, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emergency_stopped_actions_total",
		Help:      "Actions stopped by emergency stops.",
	})); err != nil {
		return nil, err
	}
	if c.activeActions, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_actions",
		Help:      "Active action records per agent at the last status poll.",
	}, []string{"agent"})); err != nil {
		return nil, err
	}
	if c.stalledStages, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stalled_stages",
		Help:      "Stages in progress past the stall threshold at the last monitoring pass.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metrics collector: %w", err)
	}
	return c, nil
}

// Attach subscribes the collector to every event on bus. Attaching again
// moves the subscription to the new bus.
func (c *Collector) Attach(bus *event.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
	if bus == nil {
		return
	}
	c.bus = bus
	c.subID = bus.SubscribeAll(c.Observe)
}

// Detach removes the bus subscription, if any.
func (c *Collector) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
}

func (c *Collector) detachLocked() {
	if c.bus != nil {
		c.bus.Unsubscribe(c.subID)
	}
	c.bus = nil
	c.subID = ""
}

// Observe records a single event. Unknown event types are ignored.
func (c *Collector) Observe(e event.Event) {
	switch ev := e.(type) {
	case event.ActionSetEvent:
		c.actions.WithLabelValues("set").Inc()
	case event.ActionCompletedEvent:
		c.actions.WithLabelValues("completed").Inc()
	case event.ActionStoppedEvent:
		c.actions.WithLabelValues("stopped").Inc()
	case event.CleanupEvent:
		c.cleanupDeleted.Add(float64(ev.Deleted))
		c.cleanupSkipped.Add(float64(ev.Skipped))
	case event.DependencyWaitEvent:
		c.waits.WithLabelValues(ev.Outcome).Inc()
		c.waitDuration.WithLabelValues(ev.Outcome).Observe(ev.Waited.Seconds())
	case event.StageStartedEvent:
		c.stages.WithLabelValues(ev.Stage, "started").Inc()
	case event.StageBlockedEvent:
		c.stages.WithLabelValues(ev.Stage, "blocked").Inc()
	case event.StageCompletedEvent:
		c.stages.WithLabelValues(ev.Stage, "completed").Inc()
	case event.ApprovalRequestedEvent:
		c.approvals.WithLabelValues(ev.RequestType, ev.Priority).Inc()
	case event.ApprovalResolvedEvent:
		decision := "rejected"
		if ev.Approved {
			decision = "approved"
		}
		c.resolutions.WithLabelValues(ev.RequestType, decision).Inc()
	case event.EmergencyStopEvent:
		c.emergencyStops.Inc()
		c.stoppedByStop.Add(float64(ev.Stopped))
	}
}

// ObserveCollaboration sets the active action gauges from a status poll.
// Agents missing from cs are reset to zero. A partial status is ignored.
func (c *Collector) ObserveCollaboration(cs *sharedmem.CollaborationStatus) {
	if cs == nil || cs.Partial {
		return
	}
	c.activeActions.Reset()
	for id, stats := range cs.AgentStats {
		c.activeActions.WithLabelValues(id).Set(float64(stats.ActiveActions))
	}
}

// SetStalledStages records how many stages the last monitoring pass found
// stalled.
func (c *Collector) SetStalledStages(n int) {
	c.stalledStages.Set(float64(n))
}
