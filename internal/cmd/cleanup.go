package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/agentsync/internal/sharedmem"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old action records",
	Long: `Cleanup deletes records older than the retention limits, whatever their
status. Limits default to cleanup.max_age and cleanup.finished_max_age.

Use --dry-run to count what would be deleted without deleting it.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupMaxAge         time.Duration
	cleanupFinishedMaxAge time.Duration
	cleanupDryRun         bool
)

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 0, "retention for active records (default cleanup.max_age)")
	cleanupCmd.Flags().DurationVar(&cleanupFinishedMaxAge, "finished-max-age", 0, "retention for completed and stopped records (default cleanup.finished_max_age)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be cleaned up without making changes")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	policy := rt.cfg.Cleanup.Retention()
	if cleanupMaxAge > 0 {
		policy.ActiveMaxAge = cleanupMaxAge
		if rt.cfg.Cleanup.FinishedMaxAge <= 0 {
			policy.FinishedMaxAge = cleanupMaxAge
		}
	}
	if cleanupFinishedMaxAge > 0 {
		policy.FinishedMaxAge = cleanupFinishedMaxAge
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if cleanupDryRun {
		n, err := countExpired(ctx, rt.mem, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d record(s) would be deleted\n", n)
		fmt.Fprintln(out, "Dry run mode - no changes made.")
		return nil
	}

	res, err := rt.mem.Sweep(ctx, policy)
	if err != nil {
		return fmt.Errorf("cleanup failed after deleting %d record(s): %w", res.Deleted, err)
	}
	fmt.Fprintf(out, "Deleted %d of %d record(s)", res.Deleted, res.Scanned)
	if res.Skipped > 0 {
		fmt.Fprintf(out, ", skipped %d undecodable", res.Skipped)
	}
	fmt.Fprintln(out)
	return nil
}

// countExpired counts the records policy would delete.
func countExpired(ctx context.Context, mem *sharedmem.Memory, policy sharedmem.RetentionPolicy) (int, error) {
	records, err := mem.GetAllActions(ctx)
	if err != nil {
		return 0, err
	}
	now := mem.Now()
	n := 0
	for _, rec := range records {
		if policy.Expired(rec, now) {
			n++
		}
	}
	return n, nil
}
