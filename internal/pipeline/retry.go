package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantarax/blocksig/internal/chunker"
)

// DefaultRetryDelay is the pause before retrying a failed block allocation.
const DefaultRetryDelay = 10 * time.Millisecond

const siteBlockAlloc = "block_alloc"

// RetryPolicy bounds how transient allocation failures are retried.
// MaxAttempts 0 retries until storage is available or the run is cancelled.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts uint64
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts)
	}
	return backoff.WithContext(b, ctx)
}

// nextBlock pulls the next block, retrying while block storage is exhausted.
// Between attempts it drains the reorder buffer so finished work keeps moving
// to the output while in-flight blocks release their storage.
func (c *Coordinator) nextBlock(ctx context.Context, span trace.Span) (*chunker.Block, error) {
	var (
		blk      *chunker.Block
		attempts uint64
	)

	op := func() error {
		if err := c.firstFailure(); err != nil {
			return backoff.Permanent(err)
		}
		b, err := c.src.Next()
		if errors.Is(err, chunker.ErrResourceExhausted) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		blk = b
		return nil
	}

	notify := func(err error, delay time.Duration) {
		attempts++
		c.retries++
		c.opts.Logger.RetryScheduled(siteBlockAlloc, attempts, delay, err)
		c.opts.Metrics.RecordRetry(siteBlockAlloc)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.String("site", siteBlockAlloc),
			attribute.Int64("attempt", int64(attempts)),
		))
		if derr := c.drain(); derr != nil {
			c.setFailure(derr)
		}
	}

	err := backoff.RetryNotify(op, c.opts.Retry.newBackOff(ctx), notify)
	switch {
	case err == nil:
		return blk, nil
	case errors.Is(err, chunker.ErrResourceExhausted):
		return nil, fmt.Errorf("%w: block %d after %d attempts: %w", ErrRetriesExhausted, c.src.Count(), attempts+1, err)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	default:
		return nil, err
	}
}
