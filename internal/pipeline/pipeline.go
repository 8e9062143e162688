package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/lineage/internal/core"
	"github.com/agenthands/lineage/internal/core/extraction"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/core/resolve"
	"github.com/agenthands/lineage/internal/fetch"
	"github.com/agenthands/lineage/internal/logger"
)

// Catalog is the persisted document record the pipeline owns.
type Catalog interface {
	Get(ctx context.Context, url string) (model.SourceDocument, error)
	List(ctx context.Context, statuses ...model.Status) ([]model.SourceDocument, error)
	Save(ctx context.Context, doc model.SourceDocument) error
	Reset(ctx context.Context, url string) error
	ResetAll(ctx context.Context) (int, error)
}

// TextExtractor turns fetched content into clean text; fetch.Registry
// implements it.
type TextExtractor interface {
	Extract(url, raw string) (string, model.Metadata, error)
}

type Config struct {
	Workers        int
	Retry          Policy
	ExtractTimeout time.Duration
}

// Resumable lists the statuses a run picks up without a forced reprocess.
var Resumable = []model.Status{
	model.StatusPending,
	model.StatusFetched,
	model.StatusExtracted,
	model.StatusMerged,
	model.StatusResolved,
	model.StatusConflictPending,
}

type Pipeline struct {
	catalog    Catalog
	fetcher    fetch.DocumentFetcher
	text       TextExtractor
	extractors []extraction.Extractor
	engine     *core.Engine
	cfg        Config
	log        *logger.Logger
}

func New(cat Catalog, fetcher fetch.DocumentFetcher, text TextExtractor, extractors []extraction.Extractor, engine *core.Engine, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		catalog:    cat,
		fetcher:    fetcher,
		text:       text,
		extractors: extractors,
		engine:     engine,
		cfg:        cfg,
		log:        log,
	}
}

type RunOptions struct {
	// URLs restricts the run; empty means every resumable document.
	URLs []string
	// Force resets the selected documents to pending first.
	Force bool
	// DryRun processes in memory only: no catalog or graph writes.
	DryRun bool
}

// Run processes the selected documents on a bounded worker pool. Document
// failures are reported in the summary; only a failure to select documents
// fails the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	docs, skipped, err := p.selectDocuments(ctx, opts)
	if err != nil {
		return nil, err
	}

	summary := NewSummary()
	for _, r := range skipped {
		summary.Add(r)
	}
	p.log.Info("starting run", "documents", len(docs), "workers", p.cfg.Workers, "dry_run", opts.DryRun)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, doc := range docs {
		if gctx.Err() != nil {
			summary.Add(Result{URL: doc.URL, Status: doc.Status, Reason: "run cancelled before start"})
			continue
		}
		g.Go(func() error {
			summary.Add(p.Process(gctx, doc, opts.DryRun))
			return nil
		})
	}
	_ = g.Wait()

	summary.Finish()
	p.log.Info("run finished", "counts", summary.Counts())
	return summary, nil
}

func (p *Pipeline) selectDocuments(ctx context.Context, opts RunOptions) ([]model.SourceDocument, []Result, error) {
	if len(opts.URLs) == 0 {
		if opts.Force && !opts.DryRun {
			n, err := p.catalog.ResetAll(ctx)
			if err != nil {
				return nil, nil, err
			}
			p.log.Info("forced reprocess of all documents", "count", n)
		}
		statuses := Resumable
		if opts.Force && opts.DryRun {
			statuses = nil
		}
		docs, err := p.catalog.List(ctx, statuses...)
		if err != nil {
			return nil, nil, err
		}
		if opts.Force {
			for i := range docs {
				forceReset(&docs[i])
			}
		}
		return docs, nil, nil
	}

	var docs []model.SourceDocument
	var skipped []Result
	for _, url := range opts.URLs {
		if opts.Force && !opts.DryRun {
			if err := p.catalog.Reset(ctx, url); err != nil {
				return nil, nil, err
			}
		}
		doc, err := p.catalog.Get(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		if opts.Force {
			forceReset(&doc)
		}
		if doc.Status.Terminal() {
			skipped = append(skipped, Result{URL: doc.URL, Status: doc.Status, Reason: "already " + string(doc.Status)})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

func forceReset(doc *model.SourceDocument) {
	doc.Status = model.StatusPending
	doc.RetryCount = 0
	doc.LastError = ""
	doc.Merged = nil
}

// errHalt stops a document's run without marking it failed.
var errHalt = errors.New("halt")

// Process runs one document from its current status until it is imported,
// fails, or has to wait for a decision.
func (p *Pipeline) Process(ctx context.Context, doc model.SourceDocument, dryRun bool) Result {
	r := &run{
		p:      p,
		doc:    doc,
		dryRun: dryRun,
		log:    p.log.With("url", doc.URL),
		res:    Result{URL: doc.URL},
	}
	err := r.execute(ctx)
	if err != nil && !errors.Is(err, errHalt) && r.res.Reason == "" {
		r.res.Reason = err.Error()
	}
	r.res.Status = r.doc.Status
	return r.res
}

type run struct {
	p       *Pipeline
	doc     model.SourceDocument
	dryRun  bool
	log     *logger.Logger
	results []model.ExtractionResult
	res     Result
}

func (r *run) interactive() bool {
	return r.p.engine.Resolver.Mode() == resolve.Interactive
}

func (r *run) execute(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted at %s: %w", r.doc.Status, err)
		}
		var err error
		switch r.doc.Status {
		case model.StatusPending:
			err = r.fetch(ctx)
		case model.StatusFetched:
			err = r.extract(ctx)
		case model.StatusExtracted:
			err = r.merge(ctx)
		case model.StatusMerged, model.StatusResolved, model.StatusConflictPending:
			err = r.reconcile(ctx)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// advance moves the document to status and records it. Staying in the same
// status is a retry and writes nothing.
func (r *run) advance(ctx context.Context, to model.Status) error {
	if r.doc.Status == to {
		return nil
	}
	if err := Transition(r.doc.Status, to, TransitionOptions{Interactive: r.interactive()}); err != nil {
		return err
	}
	r.log.Debug("status change", "from", r.doc.Status, "to", to)
	r.doc.Status = to
	return r.save(ctx)
}

// save outlives cancellation so a finished step is never forgotten.
func (r *run) save(ctx context.Context) error {
	if r.dryRun {
		return nil
	}
	if err := r.p.catalog.Save(context.WithoutCancel(ctx), r.doc); err != nil {
		return fmt.Errorf("save document status: %w", err)
	}
	return nil
}

// fail moves the document to a terminal status with cause as the reason.
func (r *run) fail(ctx context.Context, to model.Status, cause error) error {
	r.log.Warn("document failed", "stage", r.doc.Status, "status", to, "error", cause)
	r.doc.LastError = cause.Error()
	r.res.Reason = cause.Error()
	return r.advance(ctx, to)
}

func (r *run) retried(ctx context.Context, stage string) func(int, error) {
	return func(n int, err error) {
		r.doc.RetryCount++
		r.res.Retries++
		r.doc.LastError = err.Error()
		r.log.Warn("retrying stage", "stage", stage, "attempt", n, "error", err)
		if err := r.save(ctx); err != nil {
			r.log.Error("failed to record retry", "error", err)
		}
	}
}

func (r *run) fetch(ctx context.Context) error {
	if r.doc.Text == "" {
		var raw string
		err := r.p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			raw, err = r.p.fetcher.Fetch(ctx, r.doc.URL)
			return err
		}, r.retried(ctx, "fetch"))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return r.fail(ctx, model.StatusFailed, err)
		}

		text, meta, err := r.p.text.Extract(r.doc.URL, raw)
		if err != nil {
			return r.fail(ctx, model.StatusExtractionFailed, err)
		}
		r.doc.RawText = raw
		r.doc.Text = text
		r.doc.Metadata = meta
	}
	return r.advance(ctx, model.StatusFetched)
}

func (r *run) runExtractors(ctx context.Context) error {
	results, failures, err := extraction.RunAll(ctx, r.p.extractors, r.doc.Text, r.p.cfg.ExtractTimeout, r.log)
	for _, f := range failures {
		r.res.Warnings = append(r.res.Warnings, f.Error())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return r.fail(ctx, model.StatusExtractionFailed, err)
	}
	r.results = results
	return nil
}

func (r *run) extract(ctx context.Context) error {
	if err := r.runExtractors(ctx); err != nil || r.doc.Status.Terminal() {
		return err
	}
	return r.advance(ctx, model.StatusExtracted)
}

func (r *run) merge(ctx context.Context) error {
	if r.results == nil {
		// Resumed at Extracted: results are not persisted, so extract again.
		if err := r.runExtractors(ctx); err != nil || r.doc.Status.Terminal() {
			return err
		}
	}
	merged := r.p.engine.Merge(r.results)
	if _, err := r.p.engine.Identity.Key(merged); err != nil {
		return r.fail(ctx, model.StatusExtractionFailed, err)
	}
	r.doc.Merged = &merged
	return r.advance(ctx, model.StatusMerged)
}

func (r *run) reconcile(ctx context.Context) error {
	if r.doc.Merged == nil {
		return r.fail(ctx, model.StatusFailed, errors.New("no merged record stored for document"))
	}
	merged := *r.doc.Merged

	key, err := r.p.engine.Identity.Key(merged)
	if err != nil {
		return r.fail(ctx, model.StatusExtractionFailed, err)
	}
	rels := extraction.Relationships(r.doc.Text, key, merged.Value(model.FieldFullName), r.p.engine.Identity.CanonicalName)

	var out *core.Outcome
	err = r.p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.p.engine.Reconcile(ctx, r.doc, merged, rels, core.ReconcileOptions{
			DryRun: r.dryRun,
			OnConflicts: func(cs model.ConflictSet) {
				r.res.Conflicts = cs
				if err := r.advance(ctx, model.StatusConflictPending); err != nil {
					r.log.Error("failed to record pending conflicts", "error", err)
				}
			},
			OnResolved: func(model.ResolvedRecord) error {
				return r.advance(ctx, model.StatusResolved)
			},
		})
		return err
	}, r.retried(ctx, "commit"))

	if out != nil {
		if r.res.Conflicts == nil {
			r.res.Conflicts = out.Plan.Conflicts
		}
		r.res.Audit = out.Resolved.Audit
	}

	switch {
	case err == nil:
	case errors.Is(err, model.ErrConflictUnresolved):
		r.doc.LastError = err.Error()
		r.res.Reason = err.Error()
		if saveErr := r.save(ctx); saveErr != nil {
			return saveErr
		}
		return errHalt
	case errors.Is(err, model.ErrIdentity):
		return r.fail(ctx, model.StatusExtractionFailed, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return r.fail(ctx, model.StatusFailed, err)
	}

	if r.dryRun {
		r.res.Reason = "dry run"
		return errHalt
	}
	r.res.PersonID = out.Commit.PersonID
	r.res.Created = out.Commit.Created
	r.doc.LastError = ""
	return r.advance(ctx, model.StatusImported)
}
