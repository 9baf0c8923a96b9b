// Package pipeline drives a signature run: it reads blocks, fans checksum work
// out to a worker pool and writes the results back in block order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantarax/blocksig/internal/checksum"
	"github.com/quantarax/blocksig/internal/chunker"
	"github.com/quantarax/blocksig/internal/observability"
	"github.com/quantarax/blocksig/internal/reorder"
	"github.com/quantarax/blocksig/internal/signature"
	"github.com/quantarax/blocksig/internal/workerpool"
)

const tracerName = "github.com/quantarax/blocksig/internal/pipeline"

var (
	ErrCancelled        = errors.New("signature run cancelled")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrAlreadyRun       = errors.New("coordinator already ran")
)

// Executor runs submitted tasks concurrently. The coordinator owns it for the
// length of a run and shuts it down when the run ends.
type Executor interface {
	Submit(ctx context.Context, task func()) error
	ShutdownAndWait()
}

// Options tune a run. Zero values select the defaults.
type Options struct {
	Workers           int
	QueueDepth        int
	HighWaterMark     int // default 100
	Retry             RetryPolicy
	DrainPollInterval time.Duration // default 5ms

	// Executor replaces the default worker pool built from Workers and QueueDepth.
	Executor Executor
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   trace.Tracer
}

func (o *Options) setDefaults() {
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = DefaultHighWaterMark
	}
	if o.DrainPollInterval <= 0 {
		o.DrainPollInterval = 5 * time.Millisecond
	}
	if o.Retry.Delay <= 0 {
		o.Retry.Delay = DefaultRetryDelay
	}
	if o.Logger == nil {
		o.Logger = observability.NopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = observability.NewMetrics(nil)
	}
	if o.Tracer == nil {
		o.Tracer = observability.Tracer(tracerName)
	}
}

// DefaultHighWaterMark is the buffered-result count that forces a drain.
const DefaultHighWaterMark = 100

// Result summarises a run. On failure it describes the valid prefix written.
type Result struct {
	Blocks       uint64
	BytesRead    int64
	BytesWritten int64
	Drains       int
	Retries      uint64
	Duration     time.Duration
	Digest       []byte
}

// Coordinator owns one signature run.
type Coordinator struct {
	src  *chunker.Source
	w    *signature.Writer
	buf  *reorder.Buffer
	opts Options

	exec      Executor
	state     atomic.Int32
	submitted uint64
	drains    int
	retries   uint64

	mu      sync.Mutex
	failure error
}

// New prepares a run reading from src and writing to w.
func New(src *chunker.Source, w *signature.Writer, opts Options) *Coordinator {
	opts.setDefaults()
	return &Coordinator{
		src:  src,
		w:    w,
		buf:  reorder.New(),
		opts: opts,
	}
}

// State reports where the run is.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Buffered is the number of completed checksums waiting to be written.
func (c *Coordinator) Buffered() int {
	return c.buf.Len()
}

// Run executes the pipeline to completion. It may be called once.
//
// Cancelling ctx stops the run at the next block boundary. Without
// cancellation Run returns only when every block is written or a fatal error
// occurs; on error the output holds a valid but incomplete prefix.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if !c.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}
	start := time.Now()

	ctx, span := c.opts.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("block_size", c.src.BlockSize()),
		attribute.Int("high_water_mark", c.opts.HighWaterMark),
	))
	defer span.End()

	c.exec = c.opts.Executor
	if c.exec == nil {
		c.exec = workerpool.New(c.opts.Workers, c.opts.QueueDepth)
	}

	if err := c.produce(ctx, span); err != nil {
		return c.abort(span, start, err)
	}

	c.setState(StateDrainingTail)
	span.AddEvent("draining tail", trace.WithAttributes(attribute.Int64("submitted", int64(c.submitted))))
	if err := c.drainTail(ctx); err != nil {
		return c.abort(span, start, err)
	}

	c.exec.ShutdownAndWait()
	if err := c.finish(); err != nil {
		return c.abort(span, start, err)
	}

	c.setState(StateDone)
	res := c.result(start)
	c.opts.Metrics.RecordRun(true, res.Duration.Seconds())
	c.opts.Logger.RunCompleted(res.Blocks, res.BytesRead, res.BytesWritten, res.Duration)
	span.SetAttributes(attribute.Int64("blocks", int64(res.Blocks)))
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// produce is the Running state: read, submit, drain at the high-water mark.
func (c *Coordinator) produce(ctx context.Context, span trace.Span) error {
	for {
		if err := c.firstFailure(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		blk, err := c.nextBlock(ctx, span)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		// blk belongs to the worker once submitted
		index, n := blk.Index, blk.Len()
		c.opts.Metrics.RecordBlockRead(n)

		if err := c.exec.Submit(ctx, c.task(blk)); err != nil {
			blk.Release()
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			return fmt.Errorf("submit block %d: %w", index, err)
		}
		c.submitted++
		c.opts.Logger.BlockSubmitted(index, n)

		if c.buf.Len() >= c.opts.HighWaterMark {
			if err := c.drain(); err != nil {
				return err
			}
		}
	}
}

// task takes ownership of blk. It is the only code that runs on workers.
func (c *Coordinator) task(blk *chunker.Block) func() {
	return func() {
		index := blk.Index
		value := checksum.Compute(blk.Data)
		blk.Release()

		if err := c.buf.Insert(index, value); err != nil {
			c.opts.Metrics.RecordConsistencyViolation()
			c.opts.Logger.ConsistencyViolation(index, err)
			c.setFailure(err)
		}
	}
}

// drainTail waits for the outstanding blocks after the input is exhausted.
// Workers signal when the next expected record lands; the poll interval is a
// fallback for a missed signal.
func (c *Coordinator) drainTail(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.DrainPollInterval)
	defer ticker.Stop()

	for {
		if err := c.firstFailure(); err != nil {
			return err
		}
		if err := c.drain(); err != nil {
			return err
		}
		if c.buf.NextExpected() >= c.submitted {
			return nil
		}
		select {
		case <-c.buf.Ready():
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
}

func (c *Coordinator) drain() error {
	records := c.buf.DrainContiguous()
	buffered := c.buf.Len()
	c.opts.Metrics.RecordDrain(len(records), buffered)
	if len(records) == 0 {
		return nil
	}
	if err := c.w.Write(records); err != nil {
		return err
	}
	c.drains++
	c.opts.Logger.DrainFlushed(len(records), c.buf.NextExpected(), buffered)
	return nil
}

// finish runs once every task has completed and checks the end-of-run invariant.
func (c *Coordinator) finish() error {
	if err := c.firstFailure(); err != nil {
		return err
	}
	if err := c.drain(); err != nil {
		return err
	}
	if n := c.buf.Len(); n != 0 || c.buf.NextExpected() != c.submitted {
		return fmt.Errorf("%w: %d records left buffered, next expected %d of %d",
			reorder.ErrConsistency, n, c.buf.NextExpected(), c.submitted)
	}
	return c.w.Flush()
}

// abort moves the run to Failed. In-flight tasks are allowed to finish so no
// worker outlives the run. Unless ordering itself broke, the contiguous prefix
// they completed is written so the output ends at the last good block.
func (c *Coordinator) abort(span trace.Span, start time.Time, err error) (*Result, error) {
	c.setState(StateFailed)
	if c.exec != nil {
		c.exec.ShutdownAndWait()
	}
	if !errors.Is(err, reorder.ErrConsistency) && c.firstFailure() == nil {
		if derr := c.drain(); derr != nil {
			err = errors.Join(err, derr)
		}
	}
	if ferr := c.w.Flush(); ferr != nil {
		err = errors.Join(err, ferr)
	}

	res := c.result(start)
	c.opts.Metrics.RecordRun(false, res.Duration.Seconds())
	c.opts.Logger.RunFailed(err, res.Blocks)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return res, err
}

func (c *Coordinator) result(start time.Time) *Result {
	return &Result{
		Blocks:       c.w.Count(),
		BytesRead:    c.src.BytesRead(),
		BytesWritten: c.w.BytesWritten(),
		Drains:       c.drains,
		Retries:      c.retries,
		Duration:     time.Since(start),
		Digest:       c.w.Digest(),
	}
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// setFailure keeps the first fatal error reported by any goroutine.
func (c *Coordinator) setFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure == nil {
		c.failure = err
	}
}

func (c *Coordinator) firstFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}
