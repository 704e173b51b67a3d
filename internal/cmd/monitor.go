package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/orchestration"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch agent activity and escalate stalled stages",
	Long: `Monitor polls the shared store, reports active agents and stage
progress, and files a critical approval request the first time a stage stays
in progress past orchestration.stall_threshold.

With --metrics-addr the activity gauges and event counters are served for
Prometheus while the monitor runs.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var (
	monitorInterval time.Duration
	monitorOnce     bool
	monitorJSON     bool
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 30*time.Second, "time between polls")
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "poll once and exit")
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "Output each report as JSON")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	// Escalations are filed, never awaited.
	ctrl, err := rt.controller(cmd, approverShared)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	poll := func() error {
		report := ctrl.MonitorAgentActivities(ctx)
		rt.metrics.ObserveCollaboration(report.CollaborationStatus)
		rt.metrics.SetStalledStages(len(report.StalledStages))
		if monitorJSON {
			return printJSON(out, report)
		}
		printMonitoringReport(out, report)
		return nil
	}

	if err := poll(); err != nil || monitorOnce {
		return err
	}

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := poll(); err != nil {
				return err
			}
		}
	}
}

func printMonitoringReport(w io.Writer, r *orchestration.MonitoringReport) {
	fmt.Fprintf(w, "%s  %s\n",
		titleStyle.Render("MONITOR"), mutedStyle.Render(r.Timestamp.Local().Format(time.DateTime)))
	cs := r.CollaborationStatus
	if cs == nil {
		cs = &sharedmem.CollaborationStatus{}
	}
	active := 0
	for _, st := range r.ActiveAgents {
		if st.ActiveActions > 0 {
			active++
		}
	}
	fmt.Fprintf(w, "  agents with active work: %d, active actions: %d, pending human interventions: %d\n",
		active, cs.TotalActiveActions, r.HumanInterventions)
	for _, s := range r.StalledStages {
		line := fmt.Sprintf("  stalled: %s (%s) for %s", s.Stage, s.AssignedTo, s.Duration.Round(time.Second))
		if s.RequestID != "" {
			line += " -> " + s.RequestID
		}
		fmt.Fprintln(w, stateStyle("waiting").Render(line))
	}
	if cs.Partial {
		fmt.Fprintln(w, stateStyle("stopped").Render("  partial: "+cs.Error))
	}
}
