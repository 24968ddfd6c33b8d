package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/stats"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show results for a funnel",
	Long: `Show session totals for a funnel and, for every A/B tested step,
conversion rates with confidence intervals.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		rec, err := getFunnel(ctx, s, args[0])
		if err != nil {
			return err
		}
		fs, err := s.GetFunnelStats(ctx, rec.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "FUNNEL: %s (%s)\n", rec.ID, rec.Name)
		fmt.Fprintf(out, "STATE: %s\n", rec.State)
		completion := 0.0
		if fs.Sessions > 0 {
			completion = float64(fs.Completed) / float64(fs.Sessions)
		}
		fmt.Fprintf(out, "SESSIONS: %s (active %d, completed %d, abandoned %d)\n",
			formatNumber(fs.Sessions), fs.Active, fs.Completed, fs.Abandoned)
		fmt.Fprintf(out, "COMPLETION: %s\n", formatPercent(completion))
		fmt.Fprintf(out, "LEADS: %s\n", formatNumber(fs.Submissions))
		if rec.Definition.ScoringEnabled() {
			fmt.Fprintf(out, "AVG SCORE: %.1f of %d\n", fs.AvgScore, funnel.CalculateMaxScore(rec.Definition))
		}

		tested := 0
		for _, step := range rec.Definition.Steps {
			if !funnel.IsTesting(step) {
				continue
			}
			tested++

			variantStats, err := s.GetVariantStats(ctx, rec.ID, step.Base().ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printStepResult(out, stats.Analyze(step, variantStats))
		}
		if tested == 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "No A/B tests in this funnel.")
		}
		return nil
	})
}

func printStepResult(out io.Writer, result *stats.Result) {
	fmt.Fprintf(out, "STEP: %s\n", result.StepID)
	fmt.Fprintln(out, "VARIANT           VIEWS    CONVERSIONS  RATE     95% CI")
	fmt.Fprintln(out, strings.Repeat("─", 60))

	for _, v := range result.Variants {
		indicator := ""
		if v.Index == result.LeadingVariant && len(result.Variants) > 1 {
			indicator = " ← LEADING"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		if v.Views == 0 {
			ciStr = "N/A"
		}

		name := variantLabel(v)
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		fmt.Fprintf(out, "%-16s  %-7d  %-11d  %-7s  %s%s\n",
			name, v.Views, v.Conversions, formatPercent(v.Rate), ciStr, indicator)
	}

	if len(result.Variants) < 2 {
		return
	}
	leading := variantLabel(result.Variants[result.LeadingVariant])
	confPct := result.ConfidenceLevel * 100
	switch {
	case result.Confident:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, leading)
	case confPct >= 90:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident \"%s\" leads (not yet significant)\n", confPct, leading)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}
}

func variantLabel(v stats.VariantResult) string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}
