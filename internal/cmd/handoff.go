package cmd

import "github.com/spf13/cobra"

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Pass a task from one agent to another",
}

var handoffCreateCmd = &cobra.Command{
	Use:   "create <from> <to> <task>",
	Short: "Offer a task to another agent",
	Args:  cobra.ExactArgs(3),
	RunE:  runHandoffCreate,
}

var handoffAcceptCmd = &cobra.Command{
	Use:   "accept <agent> <task>",
	Short: "Accept a task handed to this agent",
	Args:  cobra.ExactArgs(2),
	RunE:  runHandoffAccept,
}

var handoffContext string

func init() {
	handoffCreateCmd.Flags().StringVar(&handoffContext, "context", "", "JSON object passed along with the task")

	handoffCmd.AddCommand(handoffCreateCmd, handoffAcceptCmd)
	rootCmd.AddCommand(handoffCmd)
}

func runHandoffCreate(cmd *cobra.Command, args []string) error {
	hctx, err := parseJSONObject("context", handoffContext)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.coord.CreateTaskHandoff(commandContext(cmd), args[0], args[1], args[2], hctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runHandoffAccept(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rec, err := rt.coord.AcceptTaskHandoff(commandContext(cmd), args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}
