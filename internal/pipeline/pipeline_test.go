package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agenthands/lineage/internal/catalog"
	"github.com/agenthands/lineage/internal/core"
	"github.com/agenthands/lineage/internal/core/commit"
	"github.com/agenthands/lineage/internal/core/conflict"
	"github.com/agenthands/lineage/internal/core/extraction"
	"github.com/agenthands/lineage/internal/core/identity"
	"github.com/agenthands/lineage/internal/core/merge"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/core/resolve"
	"github.com/agenthands/lineage/internal/driver"
	"github.com/agenthands/lineage/internal/fetch"
	"github.com/agenthands/lineage/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	d1URL = "https://www.legacy.com/us/obituaries/jsonline/name/maxine-kaczmarowski-obituary?id=3326788"
	d2URL = "https://www.example.com/obituaries/maxine-kaczmarowski-2"

	d1Text = "Kaczmarowski, Maxine V. (Nee Hucke) Found peace on May 24, 2018. Reunited with her husband Raymond."
	d2Text = "Maxine Kaczmarowski of Milwaukee, remembered by family, died in 1928 according to this transcription."
)

// MockFetcher serves canned pages and counts calls per URL.
type MockFetcher struct {
	mu    sync.Mutex
	Pages map[string]string
	Errs  map[string]error
	Calls map[string]int
	// OnFetch runs inside every Fetch call.
	OnFetch func()
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = map[string]int{}
	}
	m.Calls[url]++
	if m.OnFetch != nil {
		m.OnFetch()
	}
	if err := m.Errs[url]; err != nil {
		return "", err
	}
	if page, ok := m.Pages[url]; ok {
		return page, nil
	}
	return "", model.ErrNotFound
}

// stubExtractor answers with the result whose key occurs in the text.
type stubExtractor struct {
	TagName string
	K       model.ExtractorKind
	ByText  map[string]model.ExtractionResult
	calls   int32
}

func (e *stubExtractor) Tag() string               { return e.TagName }
func (e *stubExtractor) Kind() model.ExtractorKind { return e.K }

func (e *stubExtractor) Extract(ctx context.Context, text string) (model.ExtractionResult, error) {
	atomic.AddInt32(&e.calls, 1)
	for k, r := range e.ByText {
		if strings.Contains(text, k) {
			return r, nil
		}
	}
	return model.ExtractionResult{}, errors.New("nothing recognised")
}

func (e *stubExtractor) Calls() int { return int(atomic.LoadInt32(&e.calls)) }

type fixture struct {
	catalog   *catalog.Catalog
	store     *driver.MemoryStore
	fetcher   *MockFetcher
	modelEx   *stubExtractor
	patternEx *stubExtractor
	pipeline  *Pipeline
}

func newFixture(t *testing.T, cfg resolve.Config, decider resolve.Decider) *fixture {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	f := &fixture{
		catalog: cat,
		store:   driver.NewMemoryStore(),
		fetcher: &MockFetcher{Pages: map[string]string{d1URL: d1Text, d2URL: d2Text}, Errs: map[string]error{}},
		modelEx: &stubExtractor{TagName: "openai", K: model.KindModel, ByText: map[string]model.ExtractionResult{
			"May 24, 2018": {FullName: "Maxine Kaczmarowski", DeathDate: "May 24, 2018", Confidence: 0.9},
			"in 1928":      {FullName: "Maxine Kaczmarowski", DeathDate: "1928", Confidence: 0.95},
		}},
		patternEx: &stubExtractor{TagName: "regex", K: model.KindPattern, ByText: map[string]model.ExtractionResult{
			"May 24, 2018": {FullName: "Maxine Kaczmarowski", DeathDate: "1918", Confidence: 0.4},
		}},
	}

	engine := core.NewEngine(
		merge.NewMerger(merge.DefaultHighThreshold),
		identity.NewResolver(f.store, nil, nil),
		conflict.NewDetector(conflict.DefaultPlaceTolerance),
		resolve.NewResolver(cfg, decider, nil),
		commit.NewCommitter(f.store, time.Second, nil),
		lock.NewMemoryLocker(),
		nil,
	)
	f.pipeline = New(cat, f.fetcher, fetch.NewRegistry(fetch.PlainText{}),
		[]extraction.Extractor{f.modelEx, f.patternEx}, engine,
		Config{Workers: 2, Retry: Policy{Limit: 2, Base: time.Millisecond}, ExtractTimeout: time.Second}, nil)
	return f
}

func (f *fixture) add(t *testing.T, urls ...string) {
	t.Helper()
	for _, u := range urls {
		_, err := f.catalog.Add(context.Background(), u)
		require.NoError(t, err)
	}
}

func (f *fixture) maxine(t *testing.T) *model.CanonicalRecord {
	t.Helper()
	people, err := f.store.FindByName(context.Background(), "maxine kaczmarowski")
	require.NoError(t, err)
	require.Len(t, people, 1)
	return people[0]
}

func (f *fixture) status(t *testing.T, url string) model.SourceDocument {
	t.Helper()
	doc, err := f.catalog.Get(context.Background(), url)
	require.NoError(t, err)
	return doc
}

func TestRunMaxineEndToEnd(t *testing.T) {
	f := newFixture(t, resolve.Config{Mode: resolve.Automatic}, nil)
	f.add(t, d1URL, d2URL)
	ctx := context.Background()

	s1, err := f.pipeline.Run(ctx, RunOptions{URLs: []string{d1URL}})
	require.NoError(t, err)
	r1, ok := s1.Get(d1URL)
	require.True(t, ok)
	assert.Equal(t, model.StatusImported, r1.Status)
	assert.True(t, r1.Created)
	assert.Empty(t, r1.Conflicts)

	maxine := f.maxine(t)
	assert.Equal(t, "May 24, 2018", maxine.Value(model.FieldDeathDate))
	assert.True(t, maxine.HasCitation(model.DocumentID(d1URL)))

	// "her husband Raymond" becomes a spouse edge to a stub person.
	persons, _, _, edges := f.store.Counts()
	assert.Equal(t, 2, persons)
	assert.Equal(t, 1, edges)

	s2, err := f.pipeline.Run(ctx, RunOptions{})
	require.NoError(t, err)
	r2, ok := s2.Get(d2URL)
	require.True(t, ok)
	assert.Equal(t, model.StatusImported, r2.Status)
	assert.False(t, r2.Created)
	require.Len(t, r2.Conflicts, 1)
	assert.Equal(t, model.FieldDeathDate, r2.Conflicts[0].Field)
	assert.Contains(t, r2.Warnings, "regex: nothing recognised")

	maxine = f.maxine(t)
	assert.Equal(t, "May 24, 2018", maxine.Value(model.FieldDeathDate))
	assert.True(t, maxine.HasCitation(model.DocumentID(d2URL)))
	assert.Equal(t, 2, len(maxine.Citations))

	doc := f.status(t, d2URL)
	assert.Equal(t, model.StatusImported, doc.Status)
	assert.Equal(t, d2Text, doc.Text)
	require.NotNil(t, doc.Merged)
	assert.Equal(t, "1928", doc.Merged.Value(model.FieldDeathDate))

	// Imported documents are not picked up again.
	s3, err := f.pipeline.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, s3.Results)
}

func TestRunFetchFailures(t *testing.T) {
	f := newFixture(t, resolve.Config{}, nil)
	down := "https://example.com/down"
	missing := "https://example.com/missing"
	f.fetcher.Errs[down] = &model.NetworkError{URL: down, Status: 503, Err: errors.New("unavailable")}
	f.add(t, down, missing)

	s, err := f.pipeline.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	r, _ := s.Get(down)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Equal(t, 2, r.Retries)
	assert.Equal(t, 3, f.fetcher.Calls[down])
	doc := f.status(t, down)
	assert.Equal(t, model.StatusFailed, doc.Status)
	assert.Equal(t, 2, doc.RetryCount)
	assert.Contains(t, doc.LastError, "503")

	r, _ = s.Get(missing)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "not found")
	assert.Equal(t, 1, f.fetcher.Calls[missing])

	assert.Equal(t, map[model.Status]int{model.StatusFailed: 2}, s.Counts())
}

func TestRunExtractionFailures(t *testing.T) {
	f := newFixture(t, resolve.Config{}, nil)
	nobody := "https://example.com/nobody"
	noname := "https://example.com/noname"
	short := "https://example.com/short"
	f.fetcher.Pages[nobody] = "A notice that no extractor understands, long enough to pass the length check."
	f.fetcher.Pages[noname] = "An unnamed resident passed away peacefully on March 3, 2020 in the county home."
	f.fetcher.Pages[short] = "Too short."
	f.modelEx.ByText["March 3, 2020"] = model.ExtractionResult{DeathDate: "March 3, 2020", Confidence: 0.9}
	f.add(t, nobody, noname, short)

	s, err := f.pipeline.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	r, _ := s.Get(nobody)
	assert.Equal(t, model.StatusExtractionFailed, r.Status)
	assert.Contains(t, r.Reason, model.ErrNoExtractions.Error())

	r, _ = s.Get(noname)
	assert.Equal(t, model.StatusExtractionFailed, r.Status)
	assert.Contains(t, r.Reason, model.ErrIdentity.Error())

	r, _ = s.Get(short)
	assert.Equal(t, model.StatusExtractionFailed, r.Status)

	persons, _, _, _ := f.store.Counts()
	assert.Zero(t, persons)
}

func TestRunInteractiveSuspendsAndResumes(t *testing.T) {
	var answer atomic.Value
	answer.Store("fail")
	decider := resolve.DeciderFunc(func(ctx context.Context, c model.FieldConflict) (model.Decision, error) {
		if answer.Load() == "fail" {
			return "", errors.New("operator went home")
		}
		return model.UseNew, nil
	})
	f := newFixture(t, resolve.Config{Mode: resolve.Interactive}, decider)
	f.add(t, d1URL, d2URL)
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, RunOptions{URLs: []string{d1URL}})
	require.NoError(t, err)

	s, err := f.pipeline.Run(ctx, RunOptions{URLs: []string{d2URL}})
	require.NoError(t, err)
	r, _ := s.Get(d2URL)
	assert.Equal(t, model.StatusConflictPending, r.Status)
	assert.Contains(t, r.Reason, model.ErrConflictUnresolved.Error())
	require.Len(t, r.Conflicts, 1)

	doc := f.status(t, d2URL)
	assert.Equal(t, model.StatusConflictPending, doc.Status)
	assert.NotEmpty(t, doc.LastError)
	assert.Equal(t, "May 24, 2018", f.maxine(t).Value(model.FieldDeathDate))

	extractions := f.modelEx.Calls()
	fetches := f.fetcher.Calls[d2URL]

	answer.Store("new")
	s, err = f.pipeline.Run(ctx, RunOptions{})
	require.NoError(t, err)
	r, _ = s.Get(d2URL)
	assert.Equal(t, model.StatusImported, r.Status)
	assert.Equal(t, "1928", f.maxine(t).Value(model.FieldDeathDate))

	assert.Equal(t, extractions, f.modelEx.Calls(), "resume must not extract again")
	assert.Equal(t, fetches, f.fetcher.Calls[d2URL])
}

func TestRunCommitFailureThenForcedReprocess(t *testing.T) {
	f := newFixture(t, resolve.Config{}, nil)
	f.add(t, d1URL)
	f.store.FailCommit = errors.New("connection reset")
	ctx := context.Background()

	s, err := f.pipeline.Run(ctx, RunOptions{})
	require.NoError(t, err)
	r, _ := s.Get(d1URL)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Equal(t, 2, r.Retries)
	assert.Zero(t, f.store.Commits)
	persons, _, _, _ := f.store.Counts()
	assert.Zero(t, persons)

	// Failed is absorbing without force.
	s, err = f.pipeline.Run(ctx, RunOptions{URLs: []string{d1URL}})
	require.NoError(t, err)
	r, _ = s.Get(d1URL)
	assert.Equal(t, model.StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "already failed")

	f.store.FailCommit = nil
	s, err = f.pipeline.Run(ctx, RunOptions{URLs: []string{d1URL}, Force: true})
	require.NoError(t, err)
	r, _ = s.Get(d1URL)
	assert.Equal(t, model.StatusImported, r.Status)
	assert.Equal(t, 0, f.status(t, d1URL).RetryCount)
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, resolve.Config{}, nil)
	f.add(t, d1URL)

	s, err := f.pipeline.Run(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	r, _ := s.Get(d1URL)
	assert.Equal(t, model.StatusResolved, r.Status)
	assert.Equal(t, "dry run", r.Reason)
	assert.NotEmpty(t, r.Audit)

	assert.Equal(t, model.StatusPending, f.status(t, d1URL).Status)
	persons, _, _, _ := f.store.Counts()
	assert.Zero(t, persons)
}

func TestRunUsesStoredText(t *testing.T) {
	f := newFixture(t, resolve.Config{}, nil)
	f.add(t, d1URL)
	ctx := context.Background()
	doc := f.status(t, d1URL)
	doc.Text = d1Text
	require.NoError(t, f.catalog.Save(ctx, doc))
	delete(f.fetcher.Pages, d1URL)

	s, err := f.pipeline.Run(ctx, RunOptions{})
	require.NoError(t, err)
	r, _ := s.Get(d1URL)
	assert.Equal(t, model.StatusImported, r.Status)
	assert.Zero(t, f.fetcher.Calls[d1URL])
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, resolve.Config{}, nil)
	f.add(t, d1URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fetcher.OnFetch = cancel

	s, err := f.pipeline.Run(ctx, RunOptions{})
	require.NoError(t, err)
	r, ok := s.Get(d1URL)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.NotEmpty(t, r.Reason)
}
