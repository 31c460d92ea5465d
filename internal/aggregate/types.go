package aggregate

import (
	"context"

	"promptshelf/internal/scrapers/prompts"
)

// IdentityResolver maps an account id to the username the prompt pages are keyed by.
type IdentityResolver interface {
	Username(ctx context.Context, accountID int64) (string, error)
}

// ListSource lists the deduplicated prompt answers of an identity.
type ListSource interface {
	PromptAnswers(ctx context.Context, id prompts.Identity) prompts.ListResult
}

// PageEnrichmentSource finds the books a user attached to one prompt answer.
// Implementations must never panic and must report every failure through
// Enrichment.Err.
type PageEnrichmentSource interface {
	Enrich(ctx context.Context, username, slug string) prompts.Enrichment
}

type EnrichStatus int

const (
	// StatusPending answers have been listed but their enrichment did not complete (yet).
	StatusPending EnrichStatus = iota
	// StatusEnriched answers carry a non-nil (possibly empty) book list.
	StatusEnriched
	// StatusFailed answers were tried, EnrichedAnswer.EnrichErr says why.
	StatusFailed
)

func (s EnrichStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEnriched:
		return "enriched"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type EnrichedAnswer struct {
	prompts.PromptSummary
	// Books is nil until the enrichment succeeds.
	Books     []prompts.BookRef
	Avatar    string
	Status    EnrichStatus
	EnrichErr error
}

// Result holds one answer per distinct prompt id in the order the server listed them.
// Err is nil when the list was fetched, individual enrichment failures do not set it.
type Result struct {
	Answers []EnrichedAnswer
	Err     error
}

type UpdateKind int

const (
	UpdateSkeleton UpdateKind = iota
	UpdateEnriched
)

func (k UpdateKind) String() string {
	if k == UpdateSkeleton {
		return "skeleton"
	}
	return "enriched"
}

// Update is a single delivery to the consumer. Index is the position of the answer
// in Result.Answers.
type Update struct {
	Kind   UpdateKind
	Index  int
	Answer EnrichedAnswer
}

// Phase is the state of a single Run, it only ever moves forward.
type Phase int

const (
	PhaseResolvingIdentity Phase = iota
	PhaseListing
	PhaseEmittingSkeletons
	PhaseEnriching
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseResolvingIdentity:
		return "resolving-identity"
	case PhaseListing:
		return "listing"
	case PhaseEmittingSkeletons:
		return "emitting-skeletons"
	case PhaseEnriching:
		return "enriching"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
