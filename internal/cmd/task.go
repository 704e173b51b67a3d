package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/workflow"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Assign tasks to agents",
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <agent> <task>",
	Short: "Assign one task to a roster agent",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskAssign,
}

var taskParallelCmd = &cobra.Command{
	Use:   "parallel",
	Short: "Assign a batch of tasks concurrently",
	Long: `Parallel reads a JSON array of {"agentId", "taskId", "payload"} objects
from --file (or stdin when --file is "-") and assigns them concurrently.
Every assignment is attempted; failures are reported together.`,
	Args: cobra.NoArgs,
	RunE: runTaskParallel,
}

var (
	taskPayload string
	taskFile    string
)

func init() {
	taskAssignCmd.Flags().StringVarP(&taskPayload, "payload", "p", "", "JSON object merged into the assignment")
	taskParallelCmd.Flags().StringVarP(&taskFile, "file", "f", "-", "JSON task list, - for stdin")

	taskCmd.AddCommand(taskAssignCmd, taskParallelCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskAssign(cmd *cobra.Command, args []string) error {
	payload, err := parseJSONObject("payload", taskPayload)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.coord.AssignTask(commandContext(cmd), args[0], args[1], payload)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

// taskSpec is the JSON shape of one entry of a parallel batch.
type taskSpec struct {
	AgentID string         `json:"agentId"`
	TaskID  string         `json:"taskId"`
	Payload map[string]any `json:"payload"`
}

func readTasks(cmd *cobra.Command, path string) ([]workflow.Task, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open task file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var specs []taskSpec
	if err := json.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("task list must be a JSON array: %w", err)
	}
	tasks := make([]workflow.Task, len(specs))
	for i, s := range specs {
		tasks[i] = workflow.Task{AgentID: s.AgentID, TaskID: s.TaskID, Payload: s.Payload}
	}
	return tasks, nil
}

func runTaskParallel(cmd *cobra.Command, args []string) error {
	tasks, err := readTasks(cmd, taskFile)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ids, err := rt.coord.CoordinateParallelTasks(commandContext(cmd), tasks)
	if perr := printJSON(cmd.OutOrStdout(), ids); perr != nil && err == nil {
		err = perr
	}
	return err
}
