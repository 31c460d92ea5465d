package service

import (
	"errors"
	"time"

	"promptshelf/internal/aggregate"
	"promptshelf/internal/scrapers/prompts"
)

type StreamAnswersRequest struct {
	AccountID int64  `json:"account_id,omitempty"`
	Username  string `json:"username,omitempty"`
	// Save persists the result if the server has a store configured.
	Save bool `json:"save,omitempty"`
}

func (r *StreamAnswersRequest) Identity() prompts.Identity {
	return prompts.Identity{AccountID: r.AccountID, Username: r.Username}
}

const (
	KindSkeleton = "skeleton"
	KindEnriched = "enriched"
	KindDone     = "done"
)

type AnswerMessage struct {
	AnswerID    int64             `json:"answer_id"`
	PromptID    int64             `json:"prompt_id"`
	AccountID   int64             `json:"account_id"`
	Slug        string            `json:"slug"`
	Question    string            `json:"question,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	Books       []prompts.BookRef `json:"books"`
	Avatar      string            `json:"avatar,omitempty"`
	Status      string            `json:"status"`
	EnrichError string            `json:"enrich_error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
}

// StreamAnswersResponse is one message of the stream, every stream ends with a
// single KindDone message.
type StreamAnswersResponse struct {
	Kind   string         `json:"kind"`
	Index  int            `json:"index"`
	Answer *AnswerMessage `json:"answer,omitempty"`
	// the fields below are only set on KindDone
	Total     int    `json:"total,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Saved     bool   `json:"saved,omitempty"`
	SaveError string `json:"save_error,omitempty"`
}

// ErrorKind names the failure class of err, it is empty for a nil err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, prompts.ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, prompts.ErrIdentityUnresolved):
		return "identity_unresolved"
	case errors.Is(err, prompts.ErrExtraction):
		return "extraction"
	case errors.Is(err, prompts.ErrSchema):
		return "schema"
	case errors.Is(err, prompts.ErrDecode):
		return "decode"
	case errors.Is(err, prompts.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}

func toAnswerMessage(answer aggregate.EnrichedAnswer) *AnswerMessage {
	out := &AnswerMessage{
		AnswerID:    answer.AnswerID,
		PromptID:    answer.PromptID,
		AccountID:   answer.AccountID,
		Slug:        answer.Slug,
		Question:    answer.Question,
		Description: answer.Description,
		Books:       answer.Books,
		Avatar:      answer.Avatar,
		Status:      answer.Status.String(),
		ErrorKind:   ErrorKind(answer.EnrichErr),
	}
	if !answer.CreatedAt.IsZero() {
		createdAt := answer.CreatedAt
		out.CreatedAt = &createdAt
	}
	if answer.EnrichErr != nil {
		out.EnrichError = answer.EnrichErr.Error()
	}
	return out
}

func toResponse(update aggregate.Update) *StreamAnswersResponse {
	kind := KindEnriched
	if update.Kind == aggregate.UpdateSkeleton {
		kind = KindSkeleton
	}
	return &StreamAnswersResponse{
		Kind:   kind,
		Index:  update.Index,
		Answer: toAnswerMessage(update.Answer),
	}
}
