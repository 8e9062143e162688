package pipeline

import (
	"context"
	"time"

	"github.com/agenthands/lineage/internal/core/model"
)

// Policy retries transient failures of one stage with exponential backoff.
type Policy struct {
	// Limit is the number of retries after the first attempt.
	Limit int
	// Base is the first delay; each further retry doubles it.
	Base time.Duration
}

// Delay is the wait before retry number n, counting from 1.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < n && d < time.Hour; i++ {
		d *= 2
	}
	return d
}

// Do runs fn until it succeeds, fails permanently, or the retries run out.
// onRetry is called before each wait.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(n int, err error)) error {
	for n := 0; ; n++ {
		err := fn(ctx)
		if err == nil || !model.IsRetryable(err) || n >= p.Limit {
			return err
		}
		if onRetry != nil {
			onRetry(n+1, err)
		}

		timer := time.NewTimer(p.Delay(n + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
