package prompts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Identity is either a numeric account id or a username. The two forms are
// interchangeable through the username lookup but are never assumed equal.
type Identity struct {
	AccountID int64
	Username  string
}

func ByAccountID(id int64) Identity {
	return Identity{AccountID: id}
}

func ByUsername(username string) Identity {
	return Identity{Username: username}
}

func (i Identity) IsZero() bool {
	return i.AccountID == 0 && i.Username == ""
}

func (i Identity) String() string {
	if i.Username != "" {
		return "@" + i.Username
	}
	return "#" + strconv.FormatInt(i.AccountID, 10)
}

// PromptSummary is one row of the prompt answer list.
// AnswerID is not unique across rows of the same PromptID, the list has one row per attached book.
type PromptSummary struct {
	AnswerID    int64     `json:"answer_id"`
	CreatedAt   time.Time `json:"created_at"`
	PromptID    int64     `json:"prompt_id"`
	AccountID   int64     `json:"account_id"`
	Slug        string    `json:"slug"`
	Question    string    `json:"question,omitempty"`
	Description string    `json:"description,omitempty"`
}

type BookRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
}

// ListResult is the outcome of a list fetch. Err is nil on success, when it is
// non-nil Answers is empty.
type ListResult struct {
	Answers []PromptSummary
	Err     error
}

// Enrichment is the outcome of enriching a single prompt answer. Err is nil on
// success (Books is then non-nil, possibly empty).
type Enrichment struct {
	Books  []BookRef
	Avatar string
	Err    error
}

type ImageKind int

const (
	ImageAbsent ImageKind = iota
	ImageString
	ImageObject
)

// ImageRef is an image field that the API serializes either as a plain url string
// or as an object carrying a url.
type ImageRef struct {
	Kind ImageKind
	URL  string
}

func (r *ImageRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ImageRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var url string
		err := json.Unmarshal(data, &url)
		if err != nil {
			return err
		}
		*r = ImageRef{Kind: ImageString, URL: url}
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			URL *string `json:"url"`
		}
		err := json.Unmarshal(data, &obj)
		if err != nil {
			return err
		}
		if obj.URL == nil {
			*r = ImageRef{Kind: ImageObject}
			return nil
		}
		*r = ImageRef{Kind: ImageObject, URL: *obj.URL}
		return nil
	}
	return fmt.Errorf("image: unexpected json %.20q", data)
}

// Normalize returns the url of the image regardless of its json shape, ok is
// false if there is no usable url.
func (r ImageRef) Normalize() (url string, ok bool) {
	switch r.Kind {
	case ImageString, ImageObject:
		return r.URL, r.URL != ""
	default:
		return "", false
	}
}

// resolveImage gives the cached image priority over the plain image.
func resolveImage(cached, image ImageRef) string {
	if url, ok := cached.Normalize(); ok {
		return url
	}
	url, _ := image.Normalize()
	return url
}
