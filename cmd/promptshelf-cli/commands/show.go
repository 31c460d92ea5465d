package commands

import (
	"fmt"
	"time"

	"promptshelf/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	showDb     *string
	showPrompt *string
)

func init() {
	showDb = showCmd.Flags().String("db", "", "The sqlite database to read from, overrides the configured database.")
	showPrompt = showCmd.Flags().String("prompt", "", "Only show the books of the prompt closest to this text.")
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show [<account id | @username>] [--prompt <text>] [--db <path/to/results.db>]",
	Short: "Shows saved results, without an identity it lists everyone with a saved result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g := getGlobals(ctx)

		s, err := openStore(ctx, g.cfg, *showDb)
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 0 {
			owners, err := s.Owners(ctx)
			if err != nil {
				return err
			}
			t := newTable()
			t.AppendHeader(table.Row{"Owner", "Prompts", "Saved"})
			for _, owner := range owners {
				t.AppendRow(table.Row{owner.Owner, owner.Answers, owner.SavedAt.Format(time.DateTime)})
			}
			t.Render()
			return nil
		}

		id, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		saved, err := s.Load(ctx, id.String())
		if err != nil {
			return err
		}

		if *showPrompt == "" {
			renderAnswers(saved.Answers)
			return nil
		}

		candidates := make([]string, len(saved.Answers))
		for i, answer := range saved.Answers {
			candidates[i] = answer.Question
			if candidates[i] == "" {
				candidates[i] = answer.Slug
			}
		}
		match := textutil.BestMatch(*showPrompt, candidates, 0.8)
		if match < 0 {
			return fmt.Errorf("no saved prompt looks like %q", *showPrompt)
		}
		answer := saved.Answers[match]

		t := newTable()
		t.SetTitle(candidates[match])
		t.AppendHeader(table.Row{"#", "Book", "Image"})
		for i, book := range answer.Books {
			t.AppendRow(table.Row{i + 1, book.Title, book.Image})
		}
		if answer.EnrichErr != nil {
			t.AppendFooter(table.Row{"", answer.EnrichErr.Error(), ""})
		}
		t.Render()
		return nil
	},
}
