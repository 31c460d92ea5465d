package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/scrapers/prompts"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeIdentities struct {
	username string
	err      error
	calls    atomic.Int32
}

func (f *fakeIdentities) Username(context.Context, int64) (string, error) {
	f.calls.Add(1)
	return f.username, f.err
}

// fakeList deduplicates its rows like the real list fetcher does.
type fakeList struct {
	rows  []prompts.PromptSummary
	err   error
	calls atomic.Int32
}

func (f *fakeList) PromptAnswers(context.Context, prompts.Identity) prompts.ListResult {
	f.calls.Add(1)
	if f.err != nil {
		return prompts.ListResult{Err: f.err}
	}
	return prompts.ListResult{Answers: prompts.Dedupe(f.rows)}
}

type fakeEnricher struct {
	latency func(slug string) time.Duration
	fail    map[string]error
	// block makes every call wait for its context
	block bool

	mutex       sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

func (f *fakeEnricher) Enrich(ctx context.Context, username, slug string) prompts.Enrichment {
	f.mutex.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[slug]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mutex.Unlock()

	defer func() {
		f.mutex.Lock()
		f.inFlight--
		f.mutex.Unlock()
	}()

	var wait <-chan time.Time
	if !f.block {
		var latency time.Duration
		if f.latency != nil {
			latency = f.latency(slug)
		}
		timer := time.NewTimer(latency)
		defer timer.Stop()
		wait = timer.C
	}
	select {
	case <-wait:
	case <-ctx.Done():
		return prompts.Enrichment{Err: fmt.Errorf("%w: %w", prompts.ErrNetwork, ctx.Err())}
	}

	if err := f.fail[slug]; err != nil {
		return prompts.Enrichment{Err: err}
	}
	return prompts.Enrichment{
		Books:  []prompts.BookRef{{ID: int64(len(slug)), Title: "book for " + slug}},
		Avatar: "https://img.example/" + username + ".png",
	}
}

func (f *fakeEnricher) totalCalls() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func summaries(promptIDs ...int64) []prompts.PromptSummary {
	rows := make([]prompts.PromptSummary, len(promptIDs))
	for i, id := range promptIDs {
		rows[i] = prompts.PromptSummary{
			AnswerID: int64(100 + i),
			PromptID: id,
			Slug:     fmt.Sprintf("prompt-%d", id),
		}
	}
	return rows
}

func collect(ctx context.Context, o Orchestrator, id prompts.Identity) (Result, []Update) {
	updates := make(chan Update)
	done := make(chan Result)
	go func() {
		done <- o.Run(ctx, id, updates)
	}()

	var received []Update
	for {
		select {
		case update := <-updates:
			received = append(received, update)
		case res := <-done:
			return res, received
		}
	}
}

func TestRunEmptyList(t *testing.T) {
	enricher := &fakeEnricher{}
	o := NewOrchestrator(&fakeIdentities{username: "alice"}, &fakeList{}, enricher, Options{}, &telemetry.RecorderAPI{})

	res, updates := collect(context.Background(), o, prompts.ByAccountID(42))
	require.NoError(t, res.Err)
	require.Empty(t, res.Answers)
	require.Empty(t, updates)
	require.Equal(t, 0, enricher.totalCalls())
}

func TestRunDeduplicatedOrder(t *testing.T) {
	list := &fakeList{rows: summaries(7, 9, 7)}
	o := NewOrchestrator(&fakeIdentities{username: "alice"}, list, &fakeEnricher{}, Options{}, &telemetry.RecorderAPI{})

	res, updates := collect(context.Background(), o, prompts.ByAccountID(42))
	require.NoError(t, res.Err)
	require.Len(t, res.Answers, 2)
	require.Equal(t, int64(7), res.Answers[0].PromptID)
	require.Equal(t, int64(100), res.Answers[0].AnswerID)
	require.Equal(t, int64(9), res.Answers[1].PromptID)
	require.Len(t, updates, 4)
}

func TestRunOneEnrichmentFails(t *testing.T) {
	list := &fakeList{rows: summaries(1, 2, 3)}
	enricher := &fakeEnricher{fail: map[string]error{
		"prompt-2": fmt.Errorf("%w: connection reset", prompts.ErrNetwork),
	}}
	o := NewOrchestrator(&fakeIdentities{username: "alice"}, list, enricher, Options{}, &telemetry.RecorderAPI{})

	res, updates := collect(context.Background(), o, prompts.ByAccountID(42))
	require.NoError(t, res.Err)
	require.Len(t, res.Answers, 3)

	require.Equal(t, StatusEnriched, res.Answers[0].Status)
	require.Len(t, res.Answers[0].Books, 1)
	require.Equal(t, "https://img.example/alice.png", res.Answers[0].Avatar)

	require.Equal(t, StatusFailed, res.Answers[1].Status)
	require.Nil(t, res.Answers[1].Books)
	require.True(t, errors.Is(res.Answers[1].EnrichErr, prompts.ErrNetwork))

	require.Equal(t, StatusEnriched, res.Answers[2].Status)
	require.Len(t, res.Answers[2].Books, 1)

	// 3 skeletons then 3 enrichment deliveries, the failed one included
	require.Len(t, updates, 6)
}

func TestRunMissingMarkerIsIsolated(t *testing.T) {
	page := func(state string) []byte {
		return []byte(`<div id="app" data-page="` + state + `"></div>`)
	}
	pages := fixturePages{
		"/@alice/prompts/prompt-1": page(`{&quot;props&quot;:{&quot;prompt&quot;:{&quot;promptBooks&quot;:[{&quot;book&quot;:{&quot;id&quot;:1,&quot;title&quot;:&quot;Dune&quot;}}]}}}`),
		"/@alice/prompts/prompt-2": []byte(`<html><body>maintenance</body></html>`),
		"/@alice/prompts/prompt-3": page(`{&quot;props&quot;:{&quot;prompt&quot;:{&quot;promptBooks&quot;:[]}}}`),
	}
	enricher := prompts.NewEnricher(pages, nil, nil, &telemetry.RecorderAPI{})
	list := &fakeList{rows: summaries(1, 2, 3)}
	o := NewOrchestrator(&fakeIdentities{username: "alice"}, list, enricher, Options{}, &telemetry.RecorderAPI{})

	res, _ := collect(context.Background(), o, prompts.ByAccountID(42))
	require.NoError(t, res.Err)
	require.Equal(t, []prompts.BookRef{{ID: 1, Title: "Dune"}}, res.Answers[0].Books)

	require.Equal(t, StatusFailed, res.Answers[1].Status)
	require.Empty(t, res.Answers[1].Books)
	require.True(t, errors.Is(res.Answers[1].EnrichErr, prompts.ErrExtraction))

	// tried, nothing found
	require.Equal(t, StatusEnriched, res.Answers[2].Status)
	require.NotNil(t, res.Answers[2].Books)
	require.Empty(t, res.Answers[2].Books)
}

func TestRunCompletionOrderIndependence(t *testing.T) {
	for round := 0; round < 5; round++ {
		rng := rand.New(rand.NewSource(int64(round)))
		n := 20 + rng.Intn(20)
		ids := make([]int64, n)
		latencies := map[string]time.Duration{}
		for i := range ids {
			ids[i] = int64(i + 1)
			latencies[fmt.Sprintf("prompt-%d", i+1)] = time.Duration(rng.Intn(15)) * time.Millisecond
		}

		enricher := &fakeEnricher{latency: func(slug string) time.Duration {
			return latencies[slug]
		}}
		o := NewOrchestrator(
			&fakeIdentities{username: "alice"},
			&fakeList{rows: summaries(ids...)},
			enricher,
			Options{Concurrency: 5},
			&telemetry.RecorderAPI{},
		)

		res, updates := collect(context.Background(), o, prompts.ByAccountID(42))
		require.NoError(t, res.Err)
		require.Len(t, res.Answers, n)
		require.Len(t, updates, 2*n)

		for i := 0; i < n; i++ {
			require.Equal(t, UpdateSkeleton, updates[i].Kind)
			require.Equal(t, i, updates[i].Index)
			require.Equal(t, StatusPending, updates[i].Answer.Status)
		}

		enrichedPerIndex := map[int]int{}
		for _, update := range updates[n:] {
			require.Equal(t, UpdateEnriched, update.Kind)
			enrichedPerIndex[update.Index]++
			require.Equal(t, res.Answers[update.Index].PromptID, update.Answer.PromptID)
		}
		require.Len(t, enrichedPerIndex, n)
		for index, count := range enrichedPerIndex {
			require.Equalf(t, 1, count, "index %d", index)
		}

		for i, answer := range res.Answers {
			require.Equal(t, ids[i], answer.PromptID)
			require.Equal(t, StatusEnriched, answer.Status)
			require.Equal(t, "book for "+answer.Slug, answer.Books[0].Title)
		}
		require.Equal(t, n, enricher.totalCalls())
		require.LessOrEqual(t, enricher.maxInFlight, 5)
	}
}

func TestRunIdentityFailure(t *testing.T) {
	list := &fakeList{rows: summaries(1)}
	identities := &fakeIdentities{err: prompts.ErrIdentityUnresolved}
	tel := &telemetry.RecorderAPI{}
	o := NewOrchestrator(identities, list, &fakeEnricher{}, Options{}, tel)

	res, updates := collect(context.Background(), o, prompts.ByAccountID(42))
	require.True(t, errors.Is(res.Err, prompts.ErrIdentityUnresolved))
	require.NotNil(t, res.Answers)
	require.Empty(t, res.Answers)
	require.Empty(t, updates)
	require.Equal(t, int32(0), list.calls.Load())
	require.Equal(t, []string{"aggregate: " + report_orchestrator_run}, tel.Broken())
}

func TestRunListFailure(t *testing.T) {
	enricher := &fakeEnricher{}
	list := &fakeList{err: fmt.Errorf("%w: unauthorized", prompts.ErrNetwork)}
	o := NewOrchestrator(&fakeIdentities{username: "alice"}, list, enricher, Options{}, &telemetry.RecorderAPI{})

	res, updates := collect(context.Background(), o, prompts.ByAccountID(42))
	require.True(t, errors.Is(res.Err, prompts.ErrNetwork))
	require.Empty(t, res.Answers)
	require.Empty(t, updates)
	require.Equal(t, 0, enricher.totalCalls())
}

func TestRunByUsernameSkipsResolution(t *testing.T) {
	identities := &fakeIdentities{err: errors.New("must not be called")}
	o := NewOrchestrator(identities, &fakeList{rows: summaries(1)}, &fakeEnricher{}, Options{}, &telemetry.RecorderAPI{})

	res, _ := collect(context.Background(), o, prompts.ByUsername("bob"))
	require.NoError(t, res.Err)
	require.Equal(t, "https://img.example/bob.png", res.Answers[0].Avatar)
	require.Equal(t, int32(0), identities.calls.Load())
}

func TestRunEmptyIdentity(t *testing.T) {
	o := NewOrchestrator(&fakeIdentities{}, &fakeList{}, &fakeEnricher{}, Options{}, &telemetry.RecorderAPI{})
	res, _ := collect(context.Background(), o, prompts.Identity{})
	require.True(t, errors.Is(res.Err, prompts.ErrIdentityUnresolved))
}

func TestRunCancellation(t *testing.T) {
	enricher := &fakeEnricher{block: true}
	o := NewOrchestrator(
		&fakeIdentities{username: "alice"},
		&fakeList{rows: summaries(1, 2, 3)},
		enricher,
		Options{Concurrency: 2},
		&telemetry.RecorderAPI{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Update)
	done := make(chan Result)
	go func() {
		done <- o.Run(ctx, prompts.ByAccountID(42), updates)
	}()

	for i := 0; i < 3; i++ {
		update := <-updates
		require.Equal(t, UpdateSkeleton, update.Kind)
	}
	cancel()

	select {
	case update := <-updates:
		t.Fatalf("received update after cancellation: %+v", update)
	case res := <-done:
		require.True(t, errors.Is(res.Err, context.Canceled))
		require.Len(t, res.Answers, 3)
		for _, answer := range res.Answers {
			require.NotEqual(t, StatusEnriched, answer.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunTaskTimeout(t *testing.T) {
	enricher := &fakeEnricher{block: true}
	o := NewOrchestrator(
		&fakeIdentities{username: "alice"},
		&fakeList{rows: summaries(1, 2)},
		enricher,
		Options{TaskTimeout: 10 * time.Millisecond},
		&telemetry.RecorderAPI{},
	)

	res, _ := collect(context.Background(), o, prompts.ByAccountID(42))
	require.NoError(t, res.Err)
	for _, answer := range res.Answers {
		require.Equal(t, StatusFailed, answer.Status)
		require.True(t, errors.Is(answer.EnrichErr, context.DeadlineExceeded))
	}
}

func TestRunFuncSerializesDeliveries(t *testing.T) {
	enricher := &fakeEnricher{latency: func(string) time.Duration { return time.Millisecond }}
	o := NewOrchestrator(
		&fakeIdentities{username: "alice"},
		&fakeList{rows: summaries(1, 2, 3, 4, 5, 6, 7, 8)},
		enricher,
		Options{Concurrency: 8},
		&telemetry.RecorderAPI{},
	)

	var active atomic.Int32
	var overlapped atomic.Bool
	count := 0
	res := o.RunFunc(context.Background(), prompts.ByAccountID(42), func(Update) {
		if active.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(time.Millisecond)
		count++
		active.Add(-1)
	})

	require.NoError(t, res.Err)
	require.False(t, overlapped.Load())
	require.Equal(t, 16, count)
}

type fixturePages map[string][]byte

func (f fixturePages) FetchPage(_ context.Context, username, slug string) ([]byte, error) {
	page, ok := f[prompts.PagePath(username, slug)]
	if !ok {
		return nil, fmt.Errorf("%w: 404", prompts.ErrNetwork)
	}
	return page, nil
}
