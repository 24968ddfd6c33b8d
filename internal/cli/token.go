package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show dashboard URL with access token",
	Long: `Show the dashboard URL with your access token.

Use this when you've scrolled past the startup message or need to
share the dashboard link.

Example:
  lf token
  lf token --url https://funnels.example.com`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&serverURL, "url", "", "public server URL (default http://localhost:<port>)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(tokenFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: lf serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: lf serve")
	}

	base := serverURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dashboard: %s/dashboard?token=%s\n", base, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tip: Bookmark this URL or run 'lf token' anytime.")
	return nil
}
