package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

func init() {
	rootCmd.AddCommand(newStateCmd("publish", store.StatePublished,
		"Make a funnel available to visitors",
		"Refuses funnels with configuration problems unless --force is given."))
	rootCmd.AddCommand(newStateCmd("unpublish", store.StateDraft,
		"Take a funnel offline",
		"Visitors get a not-found response until it is published again."))
}

func newStateCmd(use string, state store.FunnelState, short, long string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Long:  short + ".\n\n" + long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				rec, err := getFunnel(ctx, s, id)
				if err != nil {
					return err
				}

				if state == store.StatePublished && !force {
					if issues := funnel.Validate(rec.Definition); len(issues) > 0 {
						for _, issue := range issues {
							fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", issue)
						}
						return errors.New("funnel has configuration problems (use --force to publish anyway)")
					}
				}

				if err := s.SetFunnelState(ctx, id, state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Funnel '%s' is now %s\n", id, state)
				return nil
			})
		},
	}

	if state == store.StatePublished {
		cmd.Flags().BoolVar(&force, "force", false, "publish even if validation reports problems")
	}
	return cmd
}
