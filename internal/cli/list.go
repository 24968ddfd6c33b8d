package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all funnels",
	Long:  `List all funnels with their state and session statistics.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		funnels, err := s.ListFunnels(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(funnels) == 0 {
			fmt.Fprintln(out, "No funnels yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Import one with:")
			fmt.Fprintln(out, "  lf import funnel.json --publish")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tSTEPS\tSESSIONS\tCOMPLETED\tLEADS\tUPDATED")

		for _, rec := range funnels {
			fs, err := s.GetFunnelStats(ctx, rec.ID)
			if err != nil {
				return fmt.Errorf("failed to get stats for funnel %s: %w", rec.ID, err)
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				rec.ID,
				rec.Name,
				strings.ToUpper(string(rec.State)),
				len(rec.Definition.Steps),
				formatNumber(fs.Sessions),
				formatNumber(fs.Completed),
				formatNumber(fs.Submissions),
				rec.UpdatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
