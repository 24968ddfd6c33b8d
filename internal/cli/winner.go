package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var variantID string

	cmd := &cobra.Command{
		Use:   "winner <id> <step>",
		Short: "Declare a winning variant for a step",
		Long: `Declare a winning variant for a step's A/B test. The winner's title,
description and button text become the step's own and the test is switched
off. Variant event history is kept.

Example:
  lf winner quiz welcome --variant B`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			funnelID, stepID := args[0], args[1]

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				rec, err := getFunnel(ctx, s, funnelID)
				if err != nil {
					return err
				}
				step, ok := rec.Definition.Step(stepID)
				if !ok {
					return fmt.Errorf("step '%s' not found in funnel '%s'", stepID, funnelID)
				}
				if !funnel.IsTesting(step) {
					return fmt.Errorf("step '%s' has no running A/B test", stepID)
				}
				if !funnel.DeclareWinner(step, variantID) {
					return fmt.Errorf("step '%s' has no variant '%s'", stepID, variantID)
				}

				if _, err := s.SaveFunnel(ctx, rec.Definition); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Declared winner for step '%s' of funnel '%s': variant %s\n", stepID, funnelID, variantID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantID, "variant", "v", "", "winning variant id (required)")
	cmd.MarkFlagRequired("variant")

	return cmd
}
