package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a funnel definition for configuration problems",
	Long: `Parse a funnel definition and report dangling routes, empty questions,
broken A/B tests and overlapping or gapped score segments.

Exits non-zero when problems are found.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	f, err := readFunnelFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "FUNNEL: %s (%s)\n", f.ID, f.Name)
	fmt.Fprintf(out, "STEPS: %d\n", len(f.Steps))
	if f.ScoringEnabled() {
		fmt.Fprintf(out, "MAX SCORE: %d\n", funnel.CalculateMaxScore(f))
	}

	issues := funnel.Validate(f)
	if len(issues) == 0 {
		fmt.Fprintln(out, "OK")
		return nil
	}

	fmt.Fprintln(out)
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	return fmt.Errorf("%d problem(s) found", len(issues))
}
