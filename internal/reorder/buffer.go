// Package reorder holds checksums that complete out of order until the
// writer can take them as a gap-free, ascending run.
package reorder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quantarax/blocksig/internal/checksum"
)

var (
	// ErrConsistency marks a broken ordering invariant. It is never transient.
	ErrConsistency    = errors.New("reorder consistency violation")
	ErrDuplicateIndex = fmt.Errorf("%w: duplicate index", ErrConsistency)
	ErrStaleIndex     = fmt.Errorf("%w: index already written", ErrConsistency)
)

// Buffer maps completed block indices to checksums and tracks the next index
// the writer expects. Every method is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	pending map[uint64]uint32
	next    uint64
	ready   chan struct{}
}

// New returns an empty buffer expecting index 0.
func New() *Buffer {
	return &Buffer{
		pending: make(map[uint64]uint32),
		ready:   make(chan struct{}, 1),
	}
}

// Insert records the checksum for index. It fails instead of overwriting when
// index is already buffered or has already been drained.
func (b *Buffer) Insert(index uint64, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < b.next {
		return fmt.Errorf("%w: %d < next expected %d", ErrStaleIndex, index, b.next)
	}
	if _, exists := b.pending[index]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateIndex, index)
	}
	b.pending[index] = value

	if index == b.next {
		select {
		case b.ready <- struct{}{}:
		default:
		}
	}
	return nil
}

// DrainContiguous removes and returns the run of records starting at the next
// expected index, stopping at the first gap. The result is empty when the next
// expected record has not arrived.
func (b *Buffer) DrainContiguous() []checksum.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []checksum.Record
	for {
		v, ok := b.pending[b.next]
		if !ok {
			return out
		}
		out = append(out, checksum.Record{Index: b.next, Value: v})
		delete(b.pending, b.next)
		b.next++
	}
}

// Len is the number of buffered records not yet drained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// NextExpected is the lowest index not yet drained.
func (b *Buffer) NextExpected() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Ready is signalled when the record for the next expected index arrives.
// A signal may be stale by the time it is received; callers drain and re-check.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}
