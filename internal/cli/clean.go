// clean.go implements the "skiff sessions clean" command for manual session cleanup.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove sessions older than the retention period",
	Long: `Remove sessions whose last update is older than the retention period,
together with their run history.

By default the configured sessions.retention_days is used.
Use --days to override it for this invocation.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

var daysFlag int

func init() {
	cleanCmd.Flags().IntVar(&daysFlag, "days", 0, "Remove sessions not updated for this many days (0 = use config)")
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if daysFlag < 0 {
		return fmt.Errorf("--days must not be negative")
	}
	if daysFlag > 0 {
		a.Config.Sessions.RetentionDays = daysFlag
	}
	if a.Config.Retention() <= 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Retention is disabled; set sessions.retention_days or pass --days.")
		return nil
	}

	removed, err := a.Cleanup()
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	if len(removed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions to clean up.")
		return nil
	}

	for _, id := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "  Removed %s\n", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s) older than %d days.\n",
		len(removed), a.Config.Sessions.RetentionDays)
	return nil
}
