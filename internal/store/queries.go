package store

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

const deleteAnswers = `delete from prompt_answer where owner = ?`

func (q *Queries) DeleteAnswers(ctx context.Context, owner string) error {
	_, err := q.db.ExecContext(ctx, deleteAnswers, owner)
	return err
}

const deleteBooks = `delete from prompt_book where owner = ?`

func (q *Queries) DeleteBooks(ctx context.Context, owner string) error {
	_, err := q.db.ExecContext(ctx, deleteBooks, owner)
	return err
}

const insertAnswer = `insert into prompt_answer (
    owner, position, answer_id, prompt_id, account_id, slug, question,
    description, created_at, avatar, status, enrich_error, saved_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertAnswerParams struct {
	Owner       string
	Position    int64
	AnswerID    int64
	PromptID    int64
	AccountID   int64
	Slug        string
	Question    string
	Description string
	CreatedAt   sql.NullInt64
	Avatar      string
	Status      string
	EnrichError string
	SavedAt     int64
}

func (q *Queries) InsertAnswer(ctx context.Context, arg InsertAnswerParams) error {
	_, err := q.db.ExecContext(ctx, insertAnswer,
		arg.Owner,
		arg.Position,
		arg.AnswerID,
		arg.PromptID,
		arg.AccountID,
		arg.Slug,
		arg.Question,
		arg.Description,
		arg.CreatedAt,
		arg.Avatar,
		arg.Status,
		arg.EnrichError,
		arg.SavedAt,
	)
	return err
}

const insertBook = `insert into prompt_book (
    owner, prompt_id, position, book_id, title, image
) values (?, ?, ?, ?, ?, ?)`

type InsertBookParams struct {
	Owner    string
	PromptID int64
	Position int64
	BookID   int64
	Title    string
	Image    string
}

func (q *Queries) InsertBook(ctx context.Context, arg InsertBookParams) error {
	_, err := q.db.ExecContext(ctx, insertBook,
		arg.Owner,
		arg.PromptID,
		arg.Position,
		arg.BookID,
		arg.Title,
		arg.Image,
	)
	return err
}

const listAnswers = `select
    answer_id, prompt_id, account_id, slug, question, description,
    created_at, avatar, status, enrich_error, saved_at
from prompt_answer
where owner = ?
order by position`

type ListAnswersRow struct {
	AnswerID    int64
	PromptID    int64
	AccountID   int64
	Slug        string
	Question    string
	Description string
	CreatedAt   sql.NullInt64
	Avatar      string
	Status      string
	EnrichError string
	SavedAt     int64
}

func (q *Queries) ListAnswers(ctx context.Context, owner string) ([]ListAnswersRow, error) {
	rows, err := q.db.QueryContext(ctx, listAnswers, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListAnswersRow
	for rows.Next() {
		var i ListAnswersRow
		if err := rows.Scan(
			&i.AnswerID,
			&i.PromptID,
			&i.AccountID,
			&i.Slug,
			&i.Question,
			&i.Description,
			&i.CreatedAt,
			&i.Avatar,
			&i.Status,
			&i.EnrichError,
			&i.SavedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listBooks = `select prompt_id, book_id, title, image
from prompt_book
where owner = ?
order by prompt_id, position`

type ListBooksRow struct {
	PromptID int64
	BookID   int64
	Title    string
	Image    string
}

func (q *Queries) ListBooks(ctx context.Context, owner string) ([]ListBooksRow, error) {
	rows, err := q.db.QueryContext(ctx, listBooks, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListBooksRow
	for rows.Next() {
		var i ListBooksRow
		if err := rows.Scan(
			&i.PromptID,
			&i.BookID,
			&i.Title,
			&i.Image,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOwners = `select owner, count(*), max(saved_at)
from prompt_answer
group by owner
order by owner`

type ListOwnersRow struct {
	Owner   string
	Answers int64
	SavedAt int64
}

func (q *Queries) ListOwners(ctx context.Context) ([]ListOwnersRow, error) {
	rows, err := q.db.QueryContext(ctx, listOwners)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListOwnersRow
	for rows.Next() {
		var i ListOwnersRow
		if err := rows.Scan(&i.Owner, &i.Answers, &i.SavedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
