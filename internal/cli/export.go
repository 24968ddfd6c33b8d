package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/store"
)

var (
	exportFormat      string
	exportSubmissions bool
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export session or lead data",
	Long: `Export a funnel's sessions (default) or submissions in CSV or JSON format.

Examples:
  lf export quiz --format csv > quiz-sessions.csv
  lf export quiz --format json > quiz-sessions.json
  lf export quiz --submissions > quiz-leads.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().BoolVar(&exportSubmissions, "submissions", false, "export submissions instead of sessions")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		rec, err := getFunnel(ctx, s, args[0])
		if err != nil {
			return err
		}

		if exportSubmissions {
			subs, err := s.ListSubmissions(ctx, rec.ID)
			if err != nil {
				return err
			}
			if exportFormat == "csv" {
				return exportSubmissionsCSV(out, subs)
			}
			return writeIndentedJSON(out, map[string]any{"submissions": nonNil(subs)})
		}

		sessions, err := s.ListSessions(ctx, rec.ID)
		if err != nil {
			return err
		}
		if exportFormat == "csv" {
			return exportSessionsCSV(out, sessions)
		}
		return writeIndentedJSON(out, map[string]any{"sessions": nonNil(sessions)})
	})
}

func exportSessionsCSV(out io.Writer, sessions []*store.Session) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"session_id", "started_at", "status", "score", "device", "source", "steps", "path", "variants"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, sess := range sessions {
		path := make([]string, len(sess.Steps))
		for i, v := range sess.Steps {
			path[i] = v.StepID
		}
		variants := make([]string, 0, len(sess.Variants))
		for _, v := range sess.Steps {
			if v.VariantID != "" {
				variants = append(variants, v.StepID+"="+v.VariantID)
			}
		}

		row := []string{
			sess.ID,
			strconv.FormatInt(sess.StartedAt.Unix(), 10),
			string(sess.Status),
			strconv.Itoa(sess.Score),
			sess.Device,
			sess.Source,
			strconv.Itoa(len(sess.Steps)),
			strings.Join(path, ">"),
			strings.Join(variants, ";"),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func exportSubmissionsCSV(out io.Writer, subs []*store.Submission) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"created_at", "session_id", "name", "email", "phone", "subscribed", "score", "completion_seconds"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, sub := range subs {
		row := []string{
			strconv.FormatInt(sub.CreatedAt.Unix(), 10),
			sub.SessionID,
			sub.Contact.Name,
			sub.Contact.Email,
			sub.Contact.Phone,
			strconv.FormatBool(sub.Contact.Subscribed),
			strconv.Itoa(sub.Score),
			strconv.FormatInt(sub.CompletionTimeSeconds, 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func writeIndentedJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// nonNil keeps empty exports as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
