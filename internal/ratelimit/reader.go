// Package ratelimit throttles how fast input is read.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Reader limits the byte rate of an underlying reader.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewReader returns r limited to bytesPerSec. A rate of 0 returns r unchanged.
// burst is the largest single read let through at once; burst <= 0 means one
// second's worth of bytes.
func NewReader(ctx context.Context, r io.Reader, bytesPerSec uint64, burst int) io.Reader {
	if bytesPerSec == 0 {
		return r
	}
	if burst <= 0 {
		burst = int(min(bytesPerSec, uint64(1<<31-1)))
	}
	return &Reader{
		ctx:     ctx,
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

func (tr *Reader) Read(p []byte) (int, error) {
	if len(p) > tr.limiter.Burst() {
		p = p[:tr.limiter.Burst()]
	}
	n, err := tr.r.Read(p)
	if n > 0 {
		if werr := tr.limiter.WaitN(tr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
