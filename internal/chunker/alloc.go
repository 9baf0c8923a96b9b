package chunker

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrResourceExhausted reports that block storage is not available right now.
// It is transient: storage comes back as in-flight blocks are released.
var ErrResourceExhausted = errors.New("block storage exhausted")

// Allocator provides storage for block data.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator allocates every block from the Go heap and never fails.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(n int) ([]byte, error) { return make([]byte, n), nil }

func (HeapAllocator) Free([]byte) {}

// BudgetAllocator caps the total bytes of block storage outstanding at once.
// Alloc never blocks: it fails with ErrResourceExhausted when the budget is spent.
type BudgetAllocator struct {
	sem      *semaphore.Weighted
	budget   int64
	inUse    atomic.Int64
	rejected atomic.Int64
}

// NewBudgetAllocator returns an allocator holding at most budget bytes.
// The budget must fit at least one block of blockSize.
func NewBudgetAllocator(budget int64, blockSize int) (*BudgetAllocator, error) {
	if budget < int64(blockSize) {
		return nil, fmt.Errorf("memory budget %d is smaller than one block (%d)", budget, blockSize)
	}
	return &BudgetAllocator{
		sem:    semaphore.NewWeighted(budget),
		budget: budget,
	}, nil
}

func (a *BudgetAllocator) Alloc(n int) ([]byte, error) {
	if !a.sem.TryAcquire(int64(n)) {
		a.rejected.Add(1)
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrResourceExhausted, n, a.inUse.Load(), a.budget)
	}
	a.inUse.Add(int64(n))
	return make([]byte, n), nil
}

// Free returns the storage of buf, which must come from Alloc on a.
func (a *BudgetAllocator) Free(buf []byte) {
	n := int64(cap(buf))
	a.inUse.Add(-n)
	a.sem.Release(n)
}

// InUse is the number of bytes currently allocated.
func (a *BudgetAllocator) InUse() int64 { return a.inUse.Load() }

// Rejected counts Alloc calls that failed for lack of budget.
func (a *BudgetAllocator) Rejected() int64 { return a.rejected.Load() }
