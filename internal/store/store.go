package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"promptshelf/internal/aggregate"
	"promptshelf/internal/components/assert"
	"promptshelf/internal/components/chrono"
	"promptshelf/internal/scrapers/prompts"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("internal/store")

// ErrIncomplete is returned when saving a result whose list fetch failed or that
// was abandoned, saving it would replace a complete result with a partial one.
var ErrIncomplete = errors.New("result is incomplete")

// ErrNotFound is returned by Load for an owner that was never saved.
var ErrNotFound = errors.New("no saved result")

// Saved is a result as it was persisted.
type Saved struct {
	Owner   string
	SavedAt time.Time
	Answers []aggregate.EnrichedAnswer
}

type OwnerSummary struct {
	Owner   string
	Answers int
	SavedAt time.Time
}

// Store persists aggregated results keyed by owner, the string form of the
// identity they were fetched for.
type Store struct {
	db     *sql.DB
	qry    *Queries
	makeTx MakeTx
	time   chrono.API
}

// NewStore creates the schema if it does not exist yet.
func NewStore(ctx context.Context, db *sql.DB, clock chrono.API) (Store, error) {
	assert.NotNil("db", db)
	assert.NotNil("clock", clock)

	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return Store{}, fmt.Errorf("create schema: %w", err)
	}
	return Store{
		db:     db,
		qry:    New(db),
		makeTx: NewMakeTx(db),
		time:   clock,
	}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func toUnixMilli(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromUnixMilli(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

// Save replaces everything saved for owner with res in a single transaction.
func (s Store) Save(ctx context.Context, owner string, res aggregate.Result) (err error) {
	ctx, span := tracer.Start(ctx, "store:Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("custom.owner", owner),
		attribute.Int("custom.answers", len(res.Answers)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if owner == "" {
		return fmt.Errorf("owner must not be empty")
	}
	if res.Err != nil {
		return fmt.Errorf("%w: %w", ErrIncomplete, res.Err)
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	err = tx.DeleteBooks(ctx, owner)
	if err != nil {
		return err
	}
	err = tx.DeleteAnswers(ctx, owner)
	if err != nil {
		return err
	}

	savedAt := s.time.Now().UnixMilli()
	for i, answer := range res.Answers {
		var enrichErr string
		if answer.EnrichErr != nil {
			enrichErr = answer.EnrichErr.Error()
		}
		err = tx.InsertAnswer(ctx, InsertAnswerParams{
			Owner:       owner,
			Position:    int64(i),
			AnswerID:    answer.AnswerID,
			PromptID:    answer.PromptID,
			AccountID:   answer.AccountID,
			Slug:        answer.Slug,
			Question:    answer.Question,
			Description: answer.Description,
			CreatedAt:   toUnixMilli(answer.CreatedAt),
			Avatar:      answer.Avatar,
			Status:      answer.Status.String(),
			EnrichError: enrichErr,
			SavedAt:     savedAt,
		})
		if err != nil {
			return fmt.Errorf("insert answer %d: %w", answer.PromptID, err)
		}

		for position, book := range answer.Books {
			err = tx.InsertBook(ctx, InsertBookParams{
				Owner:    owner,
				PromptID: answer.PromptID,
				Position: int64(position),
				BookID:   book.ID,
				Title:    book.Title,
				Image:    book.Image,
			})
			if err != nil {
				return fmt.Errorf("insert book %d of answer %d: %w", book.ID, answer.PromptID, err)
			}
		}
	}

	return commit()
}

func parseStatus(status string) aggregate.EnrichStatus {
	switch status {
	case aggregate.StatusEnriched.String():
		return aggregate.StatusEnriched
	case aggregate.StatusFailed.String():
		return aggregate.StatusFailed
	default:
		return aggregate.StatusPending
	}
}

// Load returns what was saved for owner in the order it was saved.
func (s Store) Load(ctx context.Context, owner string) (Saved, error) {
	ctx, span := tracer.Start(ctx, "store:Load")
	defer span.End()
	span.SetAttributes(attribute.String("custom.owner", owner))

	rows, err := s.qry.ListAnswers(ctx, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Saved{}, err
	}
	if len(rows) == 0 {
		return Saved{}, fmt.Errorf("%w for %s", ErrNotFound, owner)
	}
	books, err := s.qry.ListBooks(ctx, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Saved{}, err
	}

	booksByPrompt := make(map[int64][]prompts.BookRef)
	for _, book := range books {
		booksByPrompt[book.PromptID] = append(booksByPrompt[book.PromptID], prompts.BookRef{
			ID:    book.BookID,
			Title: book.Title,
			Image: book.Image,
		})
	}

	saved := Saved{
		Owner:   owner,
		SavedAt: time.UnixMilli(rows[0].SavedAt).UTC(),
		Answers: make([]aggregate.EnrichedAnswer, len(rows)),
	}
	for i, row := range rows {
		answer := aggregate.EnrichedAnswer{
			PromptSummary: prompts.PromptSummary{
				AnswerID:    row.AnswerID,
				CreatedAt:   fromUnixMilli(row.CreatedAt),
				PromptID:    row.PromptID,
				AccountID:   row.AccountID,
				Slug:        row.Slug,
				Question:    row.Question,
				Description: row.Description,
			},
			Avatar: row.Avatar,
			Status: parseStatus(row.Status),
		}
		switch answer.Status {
		case aggregate.StatusEnriched:
			answer.Books = booksByPrompt[row.PromptID]
			if answer.Books == nil {
				answer.Books = []prompts.BookRef{}
			}
		case aggregate.StatusFailed:
			answer.EnrichErr = errors.New(row.EnrichError)
		}
		saved.Answers[i] = answer
	}
	return saved, nil
}

// Owners lists every owner with a saved result.
func (s Store) Owners(ctx context.Context) ([]OwnerSummary, error) {
	rows, err := s.qry.ListOwners(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]OwnerSummary, len(rows))
	for i, row := range rows {
		out[i] = OwnerSummary{
			Owner:   row.Owner,
			Answers: int(row.Answers),
			SavedAt: time.UnixMilli(row.SavedAt).UTC(),
		}
	}
	return out, nil
}
