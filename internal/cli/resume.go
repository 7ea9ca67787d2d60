// resume.go implements the "skiff resume" command for reopening a session.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/berth-dev/skiff/internal/tui"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Reopen a session in the terminal interface",
	Long: `Open the terminal interface on the given session, or on the most
recently updated one when no id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	if !tui.IsTTY() {
		return fmt.Errorf("resume needs a terminal; use 'skiff ask --session <id>' instead")
	}

	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		latest, err := a.Latest()
		_ = a.Close()
		if err != nil {
			return fmt.Errorf("finding latest session: %w", err)
		}
		id = latest.ID
	}
	return launchTUI(id)
}
