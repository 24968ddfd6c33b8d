package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/player"
	"github.com/leadfunnel/leadfunnel/internal/store"
	"github.com/leadfunnel/leadfunnel/internal/tracking"
)

func init() {
	rootCmd.AddCommand(newPlayCmd())
}

func newPlayCmd() *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "play [id]",
		Short: "Walk through a funnel in the terminal",
		Long: `Walk through a funnel step by step, the way a visitor would.

Drafts can be played too. Sessions and submissions are only stored with
--record, so previews do not skew the statistics.

Without an id, pick one of the stored funnels interactively.

Example:
  lf play
  lf play quiz
  lf play quiz --record`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				var id string
				if len(args) == 1 {
					id = args[0]
				} else {
					picked, err := pickFunnel(ctx, s, terminalPrompter{})
					if err != nil {
						return err
					}
					id = picked
				}

				rec, err := getFunnel(ctx, s, id)
				if err != nil {
					return err
				}

				var (
					persister tracking.Persister = discard{}
					recorder  player.SubmissionRecorder
				)
				if record {
					persister, recorder = s, s
				}

				tr := tracking.New(rec.ID, "", tracking.Meta{Source: "cli", Device: tracking.DeviceDesktop},
					persister, tracking.WithLogger(logger))
				p := player.New(rec.Definition, tr, recorder,
					player.WithSticky(cfg.Variants.Sticky),
					player.WithLogger(logger))

				err = play(ctx, cmd.OutOrStdout(), p, terminalPrompter{})
				if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
					fmt.Fprintln(cmd.OutOrStdout(), "\nStopped.")
					return nil
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "store the session and any submission")
	return cmd
}

// prompter asks the visitor for input on one step.
type prompter interface {
	Choose(label string, items []string) (int, error)
	Input(label string, validate func(string) error) (string, error)
}

// pickFunnel lets the user choose among stored funnels.
func pickFunnel(ctx context.Context, s *store.SQLiteStore, in prompter) (string, error) {
	funnels, err := s.ListFunnels(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list funnels: %w", err)
	}
	if len(funnels) == 0 {
		return "", errors.New("no funnels yet, import one with 'lf import <file>'")
	}

	items := make([]string, len(funnels))
	for i, f := range funnels {
		items[i] = fmt.Sprintf("%s (%s, %s)", f.Name, f.ID, f.State)
	}
	idx, err := in.Choose("Funnel", items)
	if err != nil {
		return "", err
	}
	return funnels[idx].ID, nil
}

func play(ctx context.Context, out io.Writer, p *player.Player, in prompter) error {
	if err := p.Start(ctx); err != nil {
		return err
	}

	for {
		screen, ok := p.Current()
		if !ok {
			break
		}

		fmt.Fprintf(out, "\n[%3.0f%%] %s\n", screen.Progress, screen.Content.Title)
		if screen.Content.Description != "" {
			fmt.Fprintln(out, screen.Content.Description)
		}
		if screen.Variant.ID != funnel.OriginalVariantID {
			fmt.Fprintf(out, "(variant %s)\n", screen.Variant.ID)
		}

		answer, err := ask(out, screen, in)
		if err != nil {
			return err
		}
		p.Answer(ctx, answer)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Complete. Score: %d\n", p.Score())
	if seg := p.Last().Segment; seg != nil {
		fmt.Fprintf(out, "Segment: %s\n", seg.Name)
		if seg.CustomMessage != "" {
			fmt.Fprintln(out, seg.CustomMessage)
		}
		if seg.RedirectURL != "" {
			fmt.Fprintf(out, "Redirect: %s\n", seg.RedirectURL)
		}
	}
	return nil
}

func ask(out io.Writer, screen player.Screen, in prompter) (*funnel.Answer, error) {
	button := screen.Content.ButtonText
	if button == "" {
		button = "Continue"
	}

	switch step := screen.Step.(type) {
	case *funnel.QuestionStep:
		items := make([]string, len(step.Options))
		for i, o := range step.Options {
			items[i] = o.Text
		}
		idx, err := in.Choose(screen.Content.Title, items)
		if err != nil {
			return nil, err
		}
		o := step.Options[idx]
		return &funnel.Answer{OptionID: o.ID, Text: o.Text, Score: o.Score}, nil

	case *funnel.LeadCaptureStep:
		answer := &funnel.Answer{}
		for _, field := range step.Fields {
			switch strings.ToLower(field) {
			case "name":
				v, err := in.Input("Name", required)
				if err != nil {
					return nil, err
				}
				answer.Name = v
			case "email":
				v, err := in.Input("Email", validateEmail)
				if err != nil {
					return nil, err
				}
				answer.Email = v
			case "phone":
				v, err := in.Input("Phone", nil)
				if err != nil {
					return nil, err
				}
				answer.Phone = v
			}
		}
		idx, err := in.Choose("Send me updates?", []string{"Yes", "No"})
		if err != nil {
			return nil, err
		}
		answer.Subscribed = idx == 0
		return answer, nil

	case *funnel.CalendarStep:
		if step.EmbedURL != "" {
			fmt.Fprintf(out, "Book a time: %s\n", step.EmbedURL)
		}
	}

	if _, err := in.Choose(screen.Content.Title, []string{button}); err != nil {
		return nil, err
	}
	return nil, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func validateEmail(s string) error {
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("invalid email address")
	}
	return nil
}

type terminalPrompter struct{}

func (terminalPrompter) Choose(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	idx, _, err := prompt.Run()
	return idx, err
}

func (terminalPrompter) Input(label string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validate,
	}
	return prompt.Run()
}

// discard is a tracking.Persister for unrecorded previews.
type discard struct{}

func (discard) UpsertSession(context.Context, *store.Session) error { return nil }
func (discard) RecordVariantEvent(context.Context, store.VariantEvent) error { return nil }
