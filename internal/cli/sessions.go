// sessions.go implements the "skiff sessions" command group.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/berth-dev/skiff/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"s"},
	Short:   "List, inspect and manage saved sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session transcript as markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>...",
	Short: "Delete sessions and their run history",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find sessions by title or content",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsSearch,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session as json, markdown or html",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsExport,
}

var (
	listLimitFlag    int
	exportFormatFlag string
	exportOutputFlag string
)

func init() {
	sessionsListCmd.Flags().IntVarP(&listLimitFlag, "limit", "l", 0, "Maximum sessions to list (default sessions.max_recent)")
	sessionsExportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", session.FormatMarkdown, "Export format: json, markdown or html")
	sessionsExportCmd.Flags().StringVarP(&exportOutputFlag, "output", "o", "", "Write to a file instead of stdout")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	sessionsCmd.AddCommand(cleanCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	summaries, err := a.List(listLimitFlag)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet. Start one with: skiff ask <prompt>")
		return nil
	}
	return printSummaries(cmd.OutOrStdout(), summaries, time.Now())
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	for _, r := range sess.Repairs() {
		fmt.Fprintf(cmd.ErrOrStderr(), "repaired: %s\n", r)
	}
	return session.Write(sess, session.FormatMarkdown, cmd.OutOrStdout())
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, id := range args {
		if err := a.Delete(id); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", id, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	}
	return errors.Join(errs...)
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.Store.Search(args[0])
	if err != nil {
		return fmt.Errorf("searching sessions: %w", err)
	}
	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching sessions.")
		return nil
	}
	return printSummaries(cmd.OutOrStdout(), matches, time.Now())
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOutputFlag != "" {
		f, err := os.Create(exportOutputFlag)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOutputFlag, err)
		}
		defer f.Close()
		w = f
	}
	if err := a.Store.Export(args[0], exportFormatFlag, w); err != nil {
		return fmt.Errorf("exporting session: %w", err)
	}
	if exportOutputFlag != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", exportOutputFlag)
	}
	return nil
}

func printSummaries(out io.Writer, summaries []session.Summary, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED\tMESSAGES\tCOST")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t$%.4f\n",
			s.ID,
			truncate(s.Title, 48),
			humanize.RelTime(s.UpdatedAt, now, "ago", "from now"),
			s.MessageCount,
			s.TotalCost,
		)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
