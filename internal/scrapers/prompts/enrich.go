package prompts

import (
	"context"
	"fmt"
	"net/url"

	"promptshelf/internal/components/assert"
	"promptshelf/internal/components/telemetry"
	"promptshelf/lib/htmlutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_client_fetch_page = "client.fetch-page"
	report_enricher_enrich   = "enricher.enrich"
)

// PageFetcher fetches the rendered prompt page of a user.
type PageFetcher interface {
	FetchPage(ctx context.Context, username, slug string) ([]byte, error)
}

// AvatarLookup resolves the avatar url of a username.
type AvatarLookup interface {
	Avatar(ctx context.Context, username string) (string, error)
}

// PagePath is the path of the page a user's answer to a prompt is rendered on.
func PagePath(username, slug string) string {
	return fmt.Sprintf("/@%s/prompts/%s", url.PathEscape(username), url.PathEscape(slug))
}

// FetchPage implements PageFetcher.
func (c *Client) FetchPage(ctx context.Context, username, slug string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:FetchPage")
	defer span.End()

	req, err := c.authorized(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "no credential")
		return nil, err
	}

	link := c.host + PagePath(username, slug)
	span.SetAttributes(attribute.String("custom.url", link))

	res, err := req.
		SetHeader("accept", "text/html").
		Get(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, link, err)
	}
	if res.IsError() {
		err = fmt.Errorf("%w: %s: unexpected status %s", ErrNetwork, link, res.Status())
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.tel.ReportDebug(report_client_fetch_page, link, len(res.Body()))
	return res.Body(), nil
}

// Enricher finds the books a user attached to a prompt answer by scraping the
// prompt page.
type Enricher struct {
	pages     PageFetcher
	avatars   AvatarLookup
	extractor StateExtractor
	tel       telemetry.API
}

// NewEnricher creates an Enricher, a nil extractor means ScanExtractor and a nil
// avatars lookup skips avatars.
func NewEnricher(pages PageFetcher, avatars AvatarLookup, extractor StateExtractor, tel telemetry.API) Enricher {
	assert.NotNil("pages", pages)
	assert.NotNil("tel", tel)
	if extractor == nil {
		extractor = ScanExtractor{}
	}
	return Enricher{
		pages:     pages,
		avatars:   avatars,
		extractor: extractor,
		tel:       telemetry.NewScopedAPI("prompts_enricher", tel),
	}
}

// Enrich never fails loudly, every failure gives an empty book list for this
// answer alone with Enrichment.Err set.
func (e Enricher) Enrich(ctx context.Context, username, slug string) Enrichment {
	ctx, span := tracer.Start(ctx, "enricher:Enrich")
	defer span.End()
	span.SetAttributes(
		attribute.String("custom.username", username),
		attribute.String("custom.slug", slug),
	)

	fail := func(err error, params ...any) Enrichment {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.tel.ReportBroken(report_enricher_enrich, append([]any{err, username, slug}, params...)...)
		return Enrichment{Err: err}
	}

	if username == "" {
		return fail(fmt.Errorf("%w: empty username", ErrIdentityUnresolved))
	}
	if slug == "" {
		return fail(fmt.Errorf("%w: empty prompt slug", ErrSchema))
	}

	document, err := e.pages.FetchPage(ctx, username, slug)
	if err != nil {
		return fail(err)
	}

	blob, err := e.extractor.Extract(document)
	if err != nil {
		return fail(err, htmlutil.Title(document))
	}

	books, skipped, err := DecodePageState(blob, username)
	if err != nil {
		return fail(err)
	}
	if skipped > 0 {
		e.tel.ReportWarning(
			report_enricher_enrich,
			fmt.Errorf("skipped %d book entries without id or title", skipped),
			username,
			slug,
		)
	}
	span.SetAttributes(attribute.Int("custom.books", len(books)))

	out := Enrichment{Books: books}
	if e.avatars != nil {
		avatar, err := e.avatars.Avatar(ctx, username)
		if err == nil {
			out.Avatar = avatar
		}
	}
	return out
}
