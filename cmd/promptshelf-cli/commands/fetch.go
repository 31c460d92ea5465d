package commands

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"promptshelf/internal/aggregate"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	fetchDb   *string
	fetchSave *bool
)

func init() {
	fetchDb = fetchCmd.Flags().String("db", "", "The sqlite database to save results to, overrides the configured database.")
	fetchSave = fetchCmd.Flags().Bool("save", false, "Save the result to the database.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <account id | @username> [--save] [--db <path/to/results.db>]",
	Short: "Lists the prompt answers of a reader and the books attached to each of them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g := getGlobals(ctx)

		id, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		dump, err := dumpOutput()
		if err != nil {
			return err
		}
		orchestrator := g.cfg.NewOrchestrator(g.tel, dump)

		start := time.Now()
		completed := 0
		res := orchestrator.RunFunc(ctx, id, func(update aggregate.Update) {
			if update.Kind == aggregate.UpdateSkeleton {
				slog.Debug("listed", "index", update.Index, "slug", update.Answer.Slug)
				return
			}
			completed++
			slog.Info(
				"enriched",
				"index", update.Index,
				"slug", update.Answer.Slug,
				"status", update.Answer.Status.String(),
				"books", len(update.Answer.Books),
				"completed", completed,
			)
		})
		slog.Info("fetch finished", "answers", len(res.Answers), "seconds", time.Since(start).Seconds())
		if res.Err != nil {
			return fmt.Errorf("fetch %s: %w", id, res.Err)
		}

		renderAnswers(res.Answers)

		if *fetchSave || *fetchDb != "" {
			s, err := openStore(ctx, g.cfg, *fetchDb)
			if err != nil {
				return err
			}
			defer s.Close()
			err = s.Save(ctx, id.String(), res)
			if err != nil {
				return fmt.Errorf("save: %w", err)
			}
			slog.Info("saved", "owner", id.String())
		}
		return nil
	},
}

func renderAnswers(answers []aggregate.EnrichedAnswer) {
	t := newTable()
	t.AppendHeader(table.Row{"#", "Prompt", "Answered", "Books", "Status"})
	for i, answer := range answers {
		question := answer.Question
		if question == "" {
			question = answer.Slug
		}
		answered := ""
		if !answer.CreatedAt.IsZero() {
			answered = answer.CreatedAt.Format(time.DateOnly)
		}

		titles := make([]string, len(answer.Books))
		for j, book := range answer.Books {
			titles[j] = book.Title
		}
		status := answer.Status.String()
		if answer.EnrichErr != nil {
			status = fmt.Sprintf("%s: %s", status, truncate(answer.EnrichErr.Error(), 40))
		}

		t.AppendRow(table.Row{
			i + 1,
			truncate(question, 50),
			answered,
			truncate(strings.Join(titles, ", "), 60),
			status,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d prompts", len(answers)), "", "", ""})
	t.Render()
}
