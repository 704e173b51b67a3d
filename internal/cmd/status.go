package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/sharedmem"
	"github.com/Iron-Ham/agentsync/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stage progress and per-agent activity",
	Long: `Status summarizes the shared store: the state of every stage in
dependency order and each agent's active, completed, and stopped records.
Use --agent for one agent's roster entry and recent actions.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusJSON  bool
	statusAgent string
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	statusCmd.Flags().StringVar(&statusAgent, "agent", "", "Show one agent's status")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if statusAgent != "" {
		as, err := rt.coord.GetAgentStatus(ctx, statusAgent)
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(out, as)
		}
		printAgentStatus(out, as)
		return nil
	}

	ws := rt.coord.GetWorkflowStatus(ctx)
	cs := rt.mem.GetCollaborationStatus(ctx)
	if statusJSON {
		return printJSON(out, map[string]any{"workflow": ws, "collaboration": cs})
	}

	order, err := rt.graph.Order()
	if err != nil {
		return err
	}
	printWorkflowStatus(out, rt.graph, order, ws)
	printCollaborationStatus(out, cs)
	return nil
}

func printWorkflowStatus(w io.Writer, g *workflow.Graph, order []string, ws *workflow.WorkflowStatus) {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("WORKFLOW"))
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-28s %-14s %-14s %s", "STAGE", "STATE", "AGENT", "STARTED")))
	for _, name := range order {
		stage, _ := g.Stage(name)
		state := string(workflow.StatePending)
		started := "-"
		if info, ok := ws.Stages[name]; ok {
			state = string(info.Status)
			if !info.StartTime.IsZero() {
				started = info.StartTime.Local().Format(time.DateTime)
			}
		}
		fmt.Fprintf(&sb, "\n%-28s %s %-14s %s", name,
			stateStyle(state).Render(fmt.Sprintf("%-14s", state)), stage.AssignedAgent, mutedStyle.Render(started))
	}
	if ws.Partial {
		sb.WriteString("\n")
		sb.WriteString(stateStyle("stopped").Render("partial: " + ws.Error))
	}
	fmt.Fprintln(w, boxStyle.Render(sb.String()))
}

func printCollaborationStatus(w io.Writer, cs *sharedmem.CollaborationStatus) {
	ids := make([]string, 0, len(cs.AgentStats))
	for id := range cs.AgentStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("AGENTS  (%d active actions)", cs.TotalActiveActions)))
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-16s %-24s %8s %10s %8s", "AGENT", "ROLE", "ACTIVE", "COMPLETED", "STOPPED")))
	if len(ids) == 0 {
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render("no records"))
	}
	for _, id := range ids {
		st := cs.AgentStats[id]
		fmt.Fprintf(&sb, "\n%-16s %-24s %8d %10d %8d", id, st.Role, st.ActiveActions, st.CompletedActions, st.StoppedActions)
	}
	if cs.Partial {
		sb.WriteString("\n")
		sb.WriteString(stateStyle("stopped").Render("partial: " + cs.Error))
	}
	fmt.Fprintln(w, boxStyle.Render(sb.String()))
}

func printAgentStatus(w io.Writer, as *workflow.AgentStatus) {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", as.Name, as.ID)))
	fmt.Fprintf(&sb, "\nRole:         %s", as.PrimaryRole)
	if as.SecondaryRole != "" {
		fmt.Fprintf(&sb, " / %s", as.SecondaryRole)
	}
	if len(as.Capabilities) > 0 {
		fmt.Fprintf(&sb, "\nCapabilities: %s", strings.Join(as.Capabilities, ", "))
	}
	fmt.Fprintf(&sb, "\nTasks:        %d active, %d completed", as.ActiveTasks, as.CompletedTasks)

	if len(as.RecentActions) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(headerStyle.Render("RECENT ACTIONS"))
		for _, rec := range as.RecentActions {
			status := string(rec.Status)
			fmt.Fprintf(&sb, "\n%-28s %s %s", rec.ActionID,
				stateStyle(status).Render(fmt.Sprintf("%-10s", status)),
				mutedStyle.Render(rec.Timestamp.Local().Format(time.DateTime)))
		}
	}
	fmt.Fprintln(w, boxStyle.Render(sb.String()))
}
