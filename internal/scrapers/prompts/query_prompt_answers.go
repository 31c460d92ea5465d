package prompts

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const report_client_prompt_answers = "client.prompt-answers"

const promptAnswersByAccountQuery = `query PromptAnswersByAccount($accountId: Int!) {
  prompt_answers(
    where: {user_id: {_eq: $accountId}}
    order_by: {created_at: desc}
  ) {
    ...promptAnswerData
  }
}
fragment promptAnswerData on prompt_answers {
  id
  created_at
  prompt_id
  user_id
  prompt {
    id
    slug
    question
    description
  }
}`

const promptAnswersByUsernameQuery = `query PromptAnswersByUsername($username: citext!) {
  prompt_answers(
    where: {user: {username: {_eq: $username}}}
    order_by: {created_at: desc}
  ) {
    ...promptAnswerData
  }
}
fragment promptAnswerData on prompt_answers {
  id
  created_at
  prompt_id
  user_id
  prompt {
    id
    slug
    question
    description
  }
}`

type promptData struct {
	ID          int64   `json:"id"`
	Slug        string  `json:"slug"`
	Question    *string `json:"question"`
	Description *string `json:"description"`
}

type promptAnswerRow struct {
	ID        int64       `json:"id"`
	CreatedAt string      `json:"created_at"`
	PromptID  int64       `json:"prompt_id"`
	UserID    int64       `json:"user_id"`
	Prompt    *promptData `json:"prompt"`
}

type promptAnswersResponse struct {
	PromptAnswers []promptAnswerRow `json:"prompt_answers"`
}

type promptAnswersByAccountRequest struct {
	AccountID int64 `json:"accountId"`
}

type promptAnswersByUsernameRequest struct {
	Username string `json:"username"`
}

func decodeTimestamp(tstr string) (time.Time, error) {
	// aka. parse by ISO timestamp, fractional seconds are accepted
	return time.Parse(time.RFC3339, tstr)
}

func (c *Client) toSummary(row promptAnswerRow) (PromptSummary, bool) {
	if row.Prompt == nil || row.Prompt.Slug == "" {
		c.tel.ReportWarning(
			report_client_prompt_answers,
			fmt.Errorf("%w: prompt answer %d has no prompt slug", ErrSchema, row.ID),
		)
		return PromptSummary{}, false
	}

	createdAt, err := decodeTimestamp(row.CreatedAt)
	if err != nil {
		c.tel.ReportWarning(
			report_client_prompt_answers,
			fmt.Errorf("parse created_at: %w", err),
			row.CreatedAt,
		)
	}

	promptID := row.PromptID
	if promptID == 0 {
		promptID = row.Prompt.ID
	}

	summary := PromptSummary{
		AnswerID:  row.ID,
		CreatedAt: createdAt,
		PromptID:  promptID,
		AccountID: row.UserID,
		Slug:      row.Prompt.Slug,
	}
	if row.Prompt.Question != nil {
		summary.Question = *row.Prompt.Question
	}
	if row.Prompt.Description != nil {
		summary.Description = *row.Prompt.Description
	}
	return summary, true
}

// PromptAnswers lists the prompt answers of an identity, most recent first,
// deduplicated by prompt id.
//
// It never fails loudly: any failure gives an empty list with ListResult.Err set.
func (c *Client) PromptAnswers(ctx context.Context, id Identity) ListResult {
	ctx, span := tracer.Start(ctx, "client:PromptAnswers")
	defer span.End()
	span.SetAttributes(attribute.String("custom.identity", id.String()))

	if id.IsZero() {
		err := fmt.Errorf("%w: empty identity", ErrIdentityUnresolved)
		c.tel.ReportBroken(report_client_prompt_answers, err)
		return ListResult{Err: err}
	}

	var (
		res promptAnswersResponse
		err error
	)
	if id.AccountID != 0 {
		res, err = graphqlQuery[promptAnswersResponse](
			ctx, c, "PromptAnswersByAccount", promptAnswersByAccountQuery,
			promptAnswersByAccountRequest{AccountID: id.AccountID},
		)
	} else {
		res, err = graphqlQuery[promptAnswersResponse](
			ctx, c, "PromptAnswersByUsername", promptAnswersByUsernameQuery,
			promptAnswersByUsernameRequest{Username: id.Username},
		)
	}
	if err != nil {
		c.tel.ReportBroken(report_client_prompt_answers, err, id.String())
		return ListResult{Err: err}
	}

	rows := make([]PromptSummary, 0, len(res.PromptAnswers))
	for _, row := range res.PromptAnswers {
		summary, ok := c.toSummary(row)
		if !ok {
			continue
		}
		rows = append(rows, summary)
	}

	answers := Dedupe(rows)
	span.SetAttributes(
		attribute.Int("custom.rows", len(rows)),
		attribute.Int("custom.answers", len(answers)),
	)
	c.tel.ReportDebug(report_client_prompt_answers, len(rows), len(answers))

	return ListResult{Answers: answers}
}

// Dedupe keeps the first occurrence of every prompt id in order, later rows of the
// same prompt id are dropped without merging their payload.
func Dedupe(rows []PromptSummary) []PromptSummary {
	seen := make(map[int64]struct{}, len(rows))
	out := make([]PromptSummary, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.PromptID]; ok {
			continue
		}
		seen[row.PromptID] = struct{}{}
		out = append(out, row)
	}
	return out
}
