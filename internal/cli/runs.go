// runs.go implements the "skiff runs" command showing the run ledger.
package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/berth-dev/skiff/internal/history"
)

var runsCmd = &cobra.Command{
	Use:   "runs [session-id]",
	Short: "Show past queries with their cost and outcome",
	Long: `Show the most recent queries recorded in the run ledger, newest first.
Pass a session id to limit the list to that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

var runsLimitFlag int

func init() {
	runsCmd.Flags().IntVarP(&runsLimitFlag, "limit", "l", 20, "Maximum runs to show (0 = all)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var runs []history.Run
	if len(args) > 0 {
		runs, err = a.Runs(args[0], runsLimitFlag)
	} else {
		runs, err = a.Ledger.Recent(runsLimitFlag)
	}
	if err != nil {
		return fmt.Errorf("reading run history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSESSION\tSTATE\tMSGS\tCOST\tDURATION\tPROMPT")
	for _, r := range runs {
		state := r.State
		if r.Error != "" {
			state += " (" + truncate(r.Error, 40) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t$%.4f\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			shortID(r.SessionID),
			state,
			r.Messages,
			r.CostUSD,
			r.Duration().Round(10*time.Millisecond),
			truncate(r.Prompt, 40),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(args) == 0 {
		totals, err := a.Ledger.Totals()
		if err != nil {
			return fmt.Errorf("summing run history: %w", err)
		}
		fmt.Fprintf(out, "\n%s runs · %d failed · %d cancelled · $%.4f · %s tokens\n",
			humanize.Comma(int64(totals.Runs)), totals.Failed, totals.Cancelled,
			totals.CostUSD, humanize.Comma(int64(totals.Tokens)))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
