package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Publish, read, and wait on action records",
	Long: `Action records are the unit of shared state: one record per agent and
action ID, moving from active to completed or stopped.`,
}

var actionSetCmd = &cobra.Command{
	Use:   "set <agent> <action>",
	Short: "Create or overwrite an active action record",
	Args:  cobra.ExactArgs(2),
	RunE:  runActionSet,
}

var actionGetCmd = &cobra.Command{
	Use:   "get <agent> <action>",
	Short: "Print an action record",
	Args:  cobra.ExactArgs(2),
	RunE:  runActionGet,
}

var actionCompleteCmd = &cobra.Command{
	Use:   "complete <agent> <action>",
	Short: "Mark an action record completed with an optional result",
	Args:  cobra.ExactArgs(2),
	RunE:  runActionComplete,
}

var actionWaitCmd = &cobra.Command{
	Use:   "wait <agent> <action>",
	Short: "Block until an action record is completed and print its result",
	Long: `Wait polls the record until it is completed or the timeout expires.
A stopped record is not completion; the wait keeps going until the timeout.`,
	Args: cobra.ExactArgs(2),
	RunE: runActionWait,
}

var actionListCmd = &cobra.Command{
	Use:   "list [agent]",
	Short: "List active records, or every record of one agent",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runActionList,
}

var (
	actionPayload string
	actionResult  string
	actionTimeout time.Duration
)

func init() {
	actionSetCmd.Flags().StringVarP(&actionPayload, "payload", "p", "", "JSON object merged into the record")
	actionCompleteCmd.Flags().StringVarP(&actionResult, "result", "r", "", "result value (JSON, or a plain string)")
	actionWaitCmd.Flags().DurationVarP(&actionTimeout, "timeout", "t", 0, "how long to wait (default wait.default_timeout)")

	actionCmd.AddCommand(actionSetCmd, actionGetCmd, actionCompleteCmd, actionWaitCmd, actionListCmd)
	rootCmd.AddCommand(actionCmd)
}

func runActionSet(cmd *cobra.Command, args []string) error {
	payload, err := parseJSONObject("payload", actionPayload)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.mem.SetAction(commandContext(cmd), args[0], args[1], payload)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runActionGet(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.mem.GetAction(commandContext(cmd), args[0], args[1])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no record %s:%s", args[0], args[1])
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runActionComplete(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.mem.CompleteAction(commandContext(cmd), args[0], args[1], parseJSONValue(actionResult))
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no record %s:%s", args[0], args[1])
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runActionWait(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	result, err := rt.mem.WaitForDependency(commandContext(cmd), args[0], args[1], actionTimeout)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		result = []byte("null")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(result))
	return err
}

func runActionList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := commandContext(cmd)
	var records []*sharedmem.Record
	if len(args) == 1 {
		records, err = rt.mem.GetAgentActions(ctx, args[0])
	} else {
		records, err = rt.mem.GetActiveActions(ctx)
	}
	if err != nil {
		return err
	}
	if records == nil {
		records = []*sharedmem.Record{}
	}
	return printJSON(cmd.OutOrStdout(), records)
}
