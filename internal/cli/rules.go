// rules.go implements the "skiff rules" commands for custom behavior rules.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/berth-dev/skiff/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate and scaffold XML behavior rules",
	Long: `Rules are XML documents whose enabled entries are appended to the system
prompt of every query. Point rules.file in config.yaml at one to apply it.`,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a rules file and print the resulting prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesCheck,
}

var rulesTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print an example rules file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), rules.DefaultTemplate)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rulesCmd.AddCommand(rulesTemplateCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	parsed, err := rules.Load(args[0])
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	out := cmd.OutOrStdout()
	enabled := 0
	for _, r := range parsed {
		if r.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(out, "%d rule(s), %d enabled\n", len(parsed), enabled)
	for _, r := range parsed {
		mark := "✓"
		if !r.Enabled {
			mark = "-"
		}
		fmt.Fprintf(out, "  %s %-24s %-12s priority %d\n", mark, r.Name, r.Type, r.Priority)
	}

	if prompt := rules.ToPrompt(parsed); prompt != "" {
		fmt.Fprintf(out, "\n%s\n", prompt)
	}
	return nil
}
