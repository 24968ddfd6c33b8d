package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

func init() {
	rootCmd.AddCommand(newImportCmd())
}

func newImportCmd() *cobra.Command {
	var (
		publish   bool
		normalize bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a funnel definition",
		Long: `Import a funnel definition from a JSON file. An existing funnel with the
same id is replaced and keeps its published/draft state.

Configuration problems are reported as warnings; use 'lf validate' to
check a file without importing it.

Examples:
  lf import quiz.json
  lf import quiz.json --publish
  lf import quiz.json --normalize-weights`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFunnelFile(args[0])
			if err != nil {
				return err
			}

			if normalize {
				for _, step := range f.Steps {
					funnel.NormalizeWeights(step.Base().Variants)
				}
			}

			out := cmd.OutOrStdout()
			for _, issue := range funnel.Validate(f) {
				fmt.Fprintf(out, "warning: %s\n", issue)
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				rec, err := s.SaveFunnel(ctx, f)
				if err != nil {
					return err
				}
				if publish {
					if err := s.SetFunnelState(ctx, f.ID, store.StatePublished); err != nil {
						return fmt.Errorf("failed to publish funnel: %w", err)
					}
					rec.State = store.StatePublished
				}

				fmt.Fprintf(out, "Imported funnel '%s' (%s) with %d steps [%s]\n", rec.ID, rec.Name, len(f.Steps), rec.State)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false, "publish the funnel after importing")
	cmd.Flags().BoolVar(&normalize, "normalize-weights", false, "rescale each step's variant weights to sum to 100")

	return cmd
}
