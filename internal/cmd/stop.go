package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Emergency stop: halt every active action",
	Long: `Stop marks every active record in the namespace as stopped and files a
critical approval request describing the stop. Records created while the
stop runs may be missed; run it again to catch them.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

var (
	stopReason string
	stopJSON   bool
)

func init() {
	stopCmd.Flags().StringVarP(&stopReason, "reason", "r", "manual emergency stop", "reason recorded on every stopped action")
	stopCmd.Flags().BoolVar(&stopJSON, "json", false, "Output the stop report as JSON")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	// The stop never waits on the approver, so the shared one is always safe.
	ctrl, err := rt.controller(cmd, approverShared)
	if err != nil {
		return err
	}

	report, stopErr := ctrl.EmergencyStop(commandContext(cmd), stopReason)
	if report == nil {
		return stopErr
	}
	out := cmd.OutOrStdout()
	if stopJSON {
		if err := printJSON(out, report); err != nil {
			return err
		}
		return stopErr
	}

	fmt.Fprintf(out, "Emergency stop: %s\n", report.Reason)
	fmt.Fprintf(out, "Stopped %d action(s)", len(report.Stopped))
	if n := len(report.Failed); n > 0 {
		fmt.Fprintf(out, ", %d failed", n)
	}
	fmt.Fprintln(out)
	if report.Request.ID != "" {
		fmt.Fprintf(out, "Filed %s (%s)\n", report.Request.ID, report.Request.Priority)
	}
	return stopErr
}
