package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// pageState only declares the path that is navigated:
// props -> prompt -> promptBooks[] -> book
type pageState struct {
	Props *struct {
		Prompt *struct {
			PromptBooks *[]json.RawMessage `json:"promptBooks"`
		} `json:"prompt"`
	} `json:"props"`
}

type pageUser struct {
	Username string `json:"username"`
}

type pageBook struct {
	ID          *int64   `json:"id"`
	Title       *string  `json:"title"`
	Image       ImageRef `json:"image"`
	CachedImage ImageRef `json:"cachedImage"`
}

type promptBookEntry struct {
	User *pageUser `json:"user"`
	Book *pageBook `json:"book"`
}

// DecodePageState turns the embedded page state into the ordered books of a single
// user. Entries of other users and entries without an id or title are skipped,
// `skipped` counts the latter.
func DecodePageState(blob []byte, username string) (books []BookRef, skipped int, err error) {
	var state pageState
	err = json.Unmarshal(blob, &state)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: page state: %w", ErrDecode, err)
	}
	if state.Props == nil {
		return nil, 0, fmt.Errorf("%w: page state has no props", ErrSchema)
	}
	if state.Props.Prompt == nil {
		return nil, 0, fmt.Errorf("%w: page state has no props.prompt", ErrSchema)
	}
	if state.Props.Prompt.PromptBooks == nil {
		return nil, 0, fmt.Errorf("%w: page state has no props.prompt.promptBooks", ErrSchema)
	}

	entries := *state.Props.Prompt.PromptBooks
	books = make([]BookRef, 0, len(entries))
	for _, raw := range entries {
		var entry promptBookEntry
		err := json.Unmarshal(raw, &entry)
		if err != nil {
			skipped++
			continue
		}
		if entry.User != nil && entry.User.Username != "" &&
			!strings.EqualFold(entry.User.Username, username) {
			continue
		}
		book := entry.Book
		if book == nil || book.ID == nil || book.Title == nil || *book.Title == "" {
			skipped++
			continue
		}
		books = append(books, BookRef{
			ID:    *book.ID,
			Title: *book.Title,
			Image: resolveImage(book.CachedImage, book.Image),
		})
	}

	return books, skipped, nil
}
