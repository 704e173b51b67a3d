package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/orchestration"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Drive workflow stages",
	Long: `Stages form a dependency graph. A stage may start only once every
non-exempt dependency is completed, and only its assigned agent may complete it.`,
}

var stageStartCmd = &cobra.Command{
	Use:   "start <stage>",
	Short: "Start a stage if its dependencies are completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runStageStart,
}

var stageCompleteCmd = &cobra.Command{
	Use:   "complete <agent> <stage>",
	Short: "Complete a stage as its assigned agent",
	Args:  cobra.ExactArgs(2),
	RunE:  runStageComplete,
}

var stageStateCmd = &cobra.Command{
	Use:   "state [stage]",
	Short: "Print the state of one stage, or of every stage in order",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStageState,
}

var stageRunCmd = &cobra.Command{
	Use:   "run [stage...]",
	Short: "Run stages one after another, waiting for each to complete",
	Long: `Run starts each stage and waits for its assigned agent to complete it
before moving on. With no stages, every stage runs in dependency order.

With --oversight the full collaboration plan runs instead: initialization,
an approval to start, each phase followed by a human checkpoint, and a final
deployment approval. A graph loaded from workflow.file runs as one phase.`,
	RunE: runStageRun,
}

var (
	stageResult    string
	stageTimeout   time.Duration
	stageOversight bool
	stageApprover  string
)

func init() {
	stageCompleteCmd.Flags().StringVarP(&stageResult, "result", "r", "", "result value (JSON, or a plain string)")
	stageRunCmd.Flags().DurationVarP(&stageTimeout, "timeout", "t", 0, "how long to wait for each stage (default wait.default_timeout)")
	stageRunCmd.Flags().BoolVar(&stageOversight, "oversight", false, "run the collaboration plan with approvals and checkpoints")
	stageRunCmd.Flags().StringVar(&stageApprover, "approver", "", "how approvals are decided: auto, prompt, or shared")

	stageCmd.AddCommand(stageStartCmd, stageCompleteCmd, stageStateCmd, stageRunCmd)
	rootCmd.AddCommand(stageCmd)
}

func runStageStart(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.coord.StartStage(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runStageComplete(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.coord.CompleteStage(commandContext(cmd), args[0], args[1], parseJSONValue(stageResult))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runStageState(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := commandContext(cmd)
	names := args
	if len(names) == 0 {
		if names, err = rt.graph.Order(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		state, err := rt.coord.StageState(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-28s %s\n", name, stateStyle(string(state)).Render(string(state)))
	}
	return nil
}

func runStageRun(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := commandContext(cmd)
	if !stageOversight {
		results, err := rt.coord.ExecuteSequentialWorkflow(ctx, args, stageTimeout)
		if perr := printJSON(cmd.OutOrStdout(), results); perr != nil && err == nil {
			err = perr
		}
		return err
	}

	if len(args) > 0 {
		return fmt.Errorf("--oversight runs the whole plan and takes no stages")
	}
	ctrl, err := rt.controller(cmd, stageApprover)
	if err != nil {
		return err
	}
	plan := orchestration.DefaultPlan()
	if rt.cfg.Workflow.File != "" {
		// A custom graph runs as a single phase in dependency order.
		order, err := rt.graph.Order()
		if err != nil {
			return err
		}
		plan = orchestration.Plan{Phases: []orchestration.Phase{{Name: "workflow", Stages: order}}}
	}
	plan.StageTimeout = stageTimeout
	results, err := ctrl.StartCollaborationWorkflow(ctx, plan)
	if perr := printJSON(cmd.OutOrStdout(), results); perr != nil && err == nil {
		err = perr
	}
	return err
}
