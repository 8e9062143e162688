// Package extraction turns obituary text into ExtractionResults. Several
// extractors run side by side; the merger reconciles them.
package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
)

// Extractor is one independent way of reading a document.
type Extractor interface {
	Tag() string
	Kind() model.ExtractorKind
	Extract(ctx context.Context, text string) (model.ExtractionResult, error)
}

// Failure is one extractor that produced nothing.
type Failure struct {
	Tag string
	Err error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.Tag, f.Err) }

// RunAll runs every extractor concurrently, each bounded by timeout. It
// returns the successful results in extractor order and the failures. With
// no successes the error is model.ErrNoExtractions.
func RunAll(ctx context.Context, extractors []Extractor, text string, timeout time.Duration, log *logger.Logger) ([]model.ExtractionResult, []Failure, error) {
	if log == nil {
		log = logger.Nop()
	}
	results := make([]*model.ExtractionResult, len(extractors))
	var (
		mu       sync.Mutex
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range extractors {
		g.Go(func() error {
			callCtx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}
			res, err := ex.Extract(callCtx, text)
			if err != nil {
				log.Warn("extractor failed", "extractor", ex.Tag(), "error", err)
				mu.Lock()
				failures = append(failures, Failure{Tag: ex.Tag(), Err: err})
				mu.Unlock()
				return nil
			}
			if res.SourceTag == "" {
				res.SourceTag = ex.Tag()
			}
			if res.Kind == "" {
				res.Kind = ex.Kind()
			}
			if c := res.ClampedConfidence(); c != res.Confidence {
				log.Warn("confidence out of range, clamping", "extractor", ex.Tag(), "confidence", res.Confidence)
				res.Confidence = c
			}
			results[i] = &res
			return nil
		})
	}
	// Extractor errors are collected, never returned, so Wait only fails on
	// parent cancellation.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}

	out := make([]model.ExtractionResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return nil, failures, fmt.Errorf("%w (%d failed)", model.ErrNoExtractions, len(failures))
	}
	return out, failures, nil
}
