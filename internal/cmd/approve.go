package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/approval"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Review approval requests filed in the shared store",
	Long: `Approve lists and resolves the approval requests and checkpoints that
workflows, escalations, and emergency stops file for a human. A workflow
blocked on a request resumes once it is approved or rejected here.`,
}

var approveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending requests, most urgent first",
	Args:  cobra.NoArgs,
	RunE:  runApproveList,
}

var approveYesCmd = &cobra.Command{
	Use:   "yes <request-id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runApproveYes,
}

var approveNoCmd = &cobra.Command{
	Use:   "no <request-id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runApproveNo,
}

var (
	approveJSON   bool
	approveBy     string
	approveReason string
)

func init() {
	approveListCmd.Flags().BoolVar(&approveJSON, "json", false, "Output requests as JSON")
	approveYesCmd.Flags().StringVar(&approveBy, "by", defaultReviewer(), "name recorded as the approver")
	approveNoCmd.Flags().StringVar(&approveReason, "reason", "rejected by operator", "reason recorded on the rejection")

	approveCmd.AddCommand(approveListCmd, approveYesCmd, approveNoCmd)
	rootCmd.AddCommand(approveCmd)
}

func defaultReviewer() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "human_operator"
}

func runApproveList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	a, err := rt.sharedApprover()
	if err != nil {
		return err
	}
	reqs, err := a.Pending(commandContext(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if approveJSON {
		return printJSON(out, reqs)
	}
	printRequests(out, reqs)
	return nil
}

func printRequests(w io.Writer, reqs []approval.Request) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No pending requests"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-48s %-22s %-9s %s", "ID", "TYPE", "PRIORITY", "AGE")))
	for _, r := range reqs {
		age := time.Since(r.RequestedAt).Round(time.Second)
		line := fmt.Sprintf("%-48s %-22s %-9s %s", r.ID, r.Type, r.Priority, age)
		fmt.Fprintln(w, stateStyle(string(r.Status)).Render(line))
		keys := make([]string, 0, len(r.Context))
		for k := range r.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %s: %v\n", mutedStyle.Render(k), r.Context[k])
		}
	}
}

func runApproveYes(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	a, err := rt.sharedApprover()
	if err != nil {
		return err
	}
	if err := a.Approve(commandContext(cmd), args[0], approveBy); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Approved %s\n", args[0])
	return nil
}

func runApproveNo(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	a, err := rt.sharedApprover()
	if err != nil {
		return err
	}
	if err := a.Reject(commandContext(cmd), args[0], approveReason); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", args[0])
	return nil
}
