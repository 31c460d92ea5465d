package aggregate

import (
	"context"
	"fmt"
	"time"

	"promptshelf/internal/components/assert"
	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/scrapers/prompts"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("aggregate")

var meter = otel.Meter("aggregate")
var enrichmentCounter, _ = meter.Int64Counter(
	"promptshelf.enrichments",
	metric.WithDescription("enrichment tasks by outcome"),
)
var enrichmentDuration, _ = meter.Float64Histogram(
	"promptshelf.enrichment_duration",
	metric.WithDescription("duration of a single enrichment task"),
	metric.WithUnit("s"),
)

const (
	report_orchestrator_run     = "orchestrator.run"
	report_orchestrator_phase   = "orchestrator.phase"
	report_orchestrator_patch   = "orchestrator.patch"
	report_orchestrator_answers = "orchestrator.answers"

	DefaultConcurrency = 4
	DefaultTaskTimeout = 30 * time.Second
)

type Options struct {
	// Concurrency caps the enrichment tasks running at once.
	Concurrency int
	// TaskTimeout bounds a single enrichment, avatar lookup included.
	TaskTimeout time.Duration
}

// Orchestrator lists the prompt answers of an identity and enriches them
// concurrently, delivering partial results as they arrive.
type Orchestrator struct {
	identities IdentityResolver
	list       ListSource
	enrich     PageEnrichmentSource
	opts       Options
	tel        telemetry.API
}

func NewOrchestrator(
	identities IdentityResolver,
	list ListSource,
	enrich PageEnrichmentSource,
	opts Options,
	tel telemetry.API,
) Orchestrator {
	assert.NotNil("identities", identities)
	assert.NotNil("list", list)
	assert.NotNil("enrich", enrich)
	assert.NotNil("tel", tel)

	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}

	return Orchestrator{
		identities: identities,
		list:       list,
		enrich:     enrich,
		opts:       opts,
		tel:        telemetry.NewScopedAPI("aggregate", tel),
	}
}

type outcome struct {
	index      int
	enrichment prompts.Enrichment
	duration   time.Duration
}

func (o Orchestrator) enterPhase(span trace.Span, id prompts.Identity, phase Phase) {
	span.AddEvent(phase.String())
	o.tel.ReportDebug(report_orchestrator_phase, id.String(), phase.String())
}

// deliver returns false once ctx is done, nothing is sent after that.
func deliver(ctx context.Context, updates chan<- Update, update Update) bool {
	if ctx.Err() != nil {
		return false
	}
	if updates == nil {
		return true
	}
	select {
	case updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run resolves the identity, lists its answers, sends one UpdateSkeleton per answer
// in list order and then one UpdateEnriched per answer as enrichments complete.
//
// Every send on `updates` happens on the calling goroutine, so the consumer never sees
// two deliveries at once. `updates` may be nil and is never closed by Run.
//
// Run returns once every enrichment has completed or ctx is done, in the latter case
// the answers that did not complete are still StatusPending and Result.Err is ctx.Err().
func (o Orchestrator) Run(ctx context.Context, id prompts.Identity, updates chan<- Update) Result {
	ctx, span := tracer.Start(ctx, "orchestrator:Run")
	defer span.End()
	span.SetAttributes(attribute.String("custom.identity", id.String()))

	fail := func(err error) Result {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.enterPhase(span, id, PhaseCompleted)
		return Result{Answers: []EnrichedAnswer{}, Err: err}
	}

	o.enterPhase(span, id, PhaseResolvingIdentity)
	username := id.Username
	if username == "" {
		if id.AccountID == 0 {
			return fail(fmt.Errorf("%w: empty identity", prompts.ErrIdentityUnresolved))
		}
		resolved, err := o.identities.Username(ctx, id.AccountID)
		if err != nil {
			o.tel.ReportBroken(report_orchestrator_run, err, id.String())
			return fail(err)
		}
		username = resolved
	}

	o.enterPhase(span, id, PhaseListing)
	list := o.list.PromptAnswers(ctx, id)
	if list.Err != nil {
		o.tel.ReportBroken(report_orchestrator_run, list.Err, id.String())
		return fail(list.Err)
	}

	answers := make([]EnrichedAnswer, len(list.Answers))
	for i, summary := range list.Answers {
		answers[i] = EnrichedAnswer{PromptSummary: summary, Status: StatusPending}
	}
	o.tel.ReportCount(report_orchestrator_answers, int64(len(answers)))
	span.SetAttributes(attribute.Int("custom.answers", len(answers)))

	o.enterPhase(span, id, PhaseEmittingSkeletons)
	for i, answer := range answers {
		if !deliver(ctx, updates, Update{Kind: UpdateSkeleton, Index: i, Answer: answer}) {
			return o.abandon(span, id, answers, ctx.Err())
		}
	}

	if len(answers) == 0 {
		o.enterPhase(span, id, PhaseCompleted)
		return Result{Answers: answers}
	}

	o.enterPhase(span, id, PhaseEnriching)

	// the tasks only see their slug and index, never the answers slice
	slugs := make([]string, len(answers))
	for i, answer := range answers {
		slugs[i] = answer.Slug
	}
	outcomes := make(chan outcome, len(slugs))
	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()
	go o.launch(taskCtx, username, slugs, outcomes)

	for received := 0; received < len(answers); received++ {
		var out outcome
		select {
		case <-ctx.Done():
			return o.abandon(span, id, answers, ctx.Err())
		case out = <-outcomes:
		}

		if !o.apply(ctx, answers, out) {
			continue
		}
		if !deliver(ctx, updates, Update{Kind: UpdateEnriched, Index: out.index, Answer: answers[out.index]}) {
			return o.abandon(span, id, answers, ctx.Err())
		}
	}

	o.enterPhase(span, id, PhaseCompleted)
	return Result{Answers: answers}
}

// launch runs one enrichment per slug with at most opts.Concurrency running at once.
// outcomes must be buffered for every slug so that no task blocks after Run returns.
func (o Orchestrator) launch(ctx context.Context, username string, slugs []string, outcomes chan<- outcome) {
	var group errgroup.Group
	group.SetLimit(o.opts.Concurrency)

	for i, slug := range slugs {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, o.opts.TaskTimeout)
			defer cancel()

			start := time.Now()
			enrichment := o.enrich.Enrich(taskCtx, username, slug)
			outcomes <- outcome{
				index:      i,
				enrichment: enrichment,
				duration:   time.Since(start),
			}
			return nil
		})
	}

	group.Wait()
}

// apply patches the answer at out.index, it returns false if the outcome was
// discarded.
func (o Orchestrator) apply(ctx context.Context, answers []EnrichedAnswer, out outcome) bool {
	if out.index < 0 || out.index >= len(answers) {
		o.tel.ReportBroken(report_orchestrator_patch, fmt.Errorf("outcome index %d out of range", out.index))
		return false
	}
	answer := &answers[out.index]
	if answer.Status != StatusPending {
		o.tel.ReportBroken(report_orchestrator_patch, fmt.Errorf("answer %d was already %s", out.index, answer.Status))
		return false
	}

	result := "enriched"
	if out.enrichment.Err != nil {
		answer.Status = StatusFailed
		answer.EnrichErr = out.enrichment.Err
		result = "failed"
	} else {
		books := out.enrichment.Books
		if books == nil {
			books = []prompts.BookRef{}
		}
		answer.Books = books
		answer.Avatar = out.enrichment.Avatar
		answer.Status = StatusEnriched
	}

	attrs := metric.WithAttributes(attribute.String("outcome", result))
	enrichmentCounter.Add(ctx, 1, attrs)
	enrichmentDuration.Record(ctx, out.duration.Seconds(), attrs)
	return true
}

func (o Orchestrator) abandon(span trace.Span, id prompts.Identity, answers []EnrichedAnswer, err error) Result {
	span.SetStatus(codes.Error, "abandoned")
	o.tel.ReportWarning(report_orchestrator_run, fmt.Errorf("abandoned: %w", err), id.String())
	o.enterPhase(span, id, PhaseCompleted)
	return Result{Answers: answers, Err: err}
}

// RunFunc is Run with a callback instead of a channel. sink is called from a
// single goroutine, one update at a time, and never after RunFunc returns.
func (o Orchestrator) RunFunc(ctx context.Context, id prompts.Identity, sink func(Update)) Result {
	updates := make(chan Update)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range updates {
			sink(update)
		}
	}()

	res := o.Run(ctx, id, updates)
	close(updates)
	<-done
	return res
}
