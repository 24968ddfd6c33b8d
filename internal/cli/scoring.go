package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

func init() {
	rootCmd.AddCommand(newScoringCmd())
}

func newScoringCmd() *cobra.Command {
	var initDefaults bool

	cmd := &cobra.Command{
		Use:   "scoring <id>",
		Short: "Show or initialise a funnel's score segments",
		Long: `Show the maximum achievable score and the score segments of a funnel.

With --init-defaults, scoring is enabled and the segments are replaced by
three equal low/medium/high bands over the current maximum score.

Example:
  lf scoring quiz
  lf scoring quiz --init-defaults`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				out := cmd.OutOrStdout()

				rec, err := getFunnel(ctx, s, args[0])
				if err != nil {
					return err
				}
				f := rec.Definition
				maxScore := funnel.CalculateMaxScore(f)

				if initDefaults {
					if f.Scoring == nil {
						f.Scoring = &funnel.ScoringConfig{}
					}
					f.Scoring.Enabled = true
					f.Scoring.Segments = funnel.GenerateDefaultSegments(maxScore)
					if _, err := s.SaveFunnel(ctx, f); err != nil {
						return err
					}
					fmt.Fprintf(out, "Generated %d default segment(s)\n\n", len(f.Scoring.Segments))
				}

				fmt.Fprintf(out, "MAX SCORE: %d\n", maxScore)
				if !f.ScoringEnabled() {
					fmt.Fprintln(out, "Scoring is disabled. Run with --init-defaults to enable it.")
					return nil
				}
				if len(f.Scoring.Segments) == 0 {
					fmt.Fprintf(out, "No segments; legacy threshold %d\n", f.Scoring.Threshold)
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SEGMENT\tNAME\tRANGE\tROUTES TO")
				for _, seg := range f.Scoring.Segments {
					target := seg.NextStepID
					if target == "" {
						target = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%d-%d\t%s\n", seg.ID, seg.Name, seg.MinScore, seg.MaxScore, target)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				for _, issue := range funnel.Validate(f) {
					fmt.Fprintf(out, "warning: %s\n", issue)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&initDefaults, "init-defaults", false, "replace segments with low/medium/high bands")
	return cmd
}
