package reorder

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarax/blocksig/internal/checksum"
)

func TestDrainStopsAtGap(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(1, 11))
	require.NoError(t, b.Insert(2, 22))

	assert.Empty(t, b.DrainContiguous())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, uint64(0), b.NextExpected())

	require.NoError(t, b.Insert(0, 0))
	require.NoError(t, b.Insert(4, 44))

	got := b.DrainContiguous()
	assert.Equal(t, []checksum.Record{
		{Index: 0, Value: 0},
		{Index: 1, Value: 11},
		{Index: 2, Value: 22},
	}, got)
	assert.Equal(t, uint64(3), b.NextExpected())
	assert.Equal(t, 1, b.Len())
}

func TestInsertDuplicate(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(5, 1))

	err := b.Insert(5, 2)
	assert.ErrorIs(t, err, ErrDuplicateIndex)
	assert.ErrorIs(t, err, ErrConsistency)

	// the original value survives
	require.NoError(t, b.Insert(0, 0))
	for i := uint64(1); i < 5; i++ {
		require.NoError(t, b.Insert(i, 0))
	}
	got := b.DrainContiguous()
	require.Len(t, got, 6)
	assert.Equal(t, uint32(1), got[5].Value)
}

func TestInsertStale(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(0, 7))
	b.DrainContiguous()

	err := b.Insert(0, 7)
	assert.ErrorIs(t, err, ErrStaleIndex)
	assert.ErrorIs(t, err, ErrConsistency)
	assert.Zero(t, b.Len())
}

func TestReadySignal(t *testing.T) {
	b := New()
	require.NoError(t, b.Insert(3, 0))
	select {
	case <-b.Ready():
		t.Fatal("ready signalled for an out-of-order record")
	default:
	}

	require.NoError(t, b.Insert(0, 0))
	select {
	case <-b.Ready():
	default:
		t.Fatal("ready not signalled for the next expected record")
	}
}

// Concurrent inserts in random order, drained concurrently, must come out as
// exactly 0..n-1 with a non-decreasing cursor.
func TestConcurrentInsertAndDrain(t *testing.T) {
	const n = 5000
	b := New()

	order := rand.New(rand.NewSource(42)).Perm(n)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += 8 {
				idx := uint64(order[i])
				assert.NoError(t, b.Insert(idx, uint32(idx)*3))
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var drained []checksum.Record
	last := uint64(0)
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		drained = append(drained, b.DrainContiguous()...)
		next := b.NextExpected()
		require.GreaterOrEqual(t, next, last)
		last = next
	}
	drained = append(drained, b.DrainContiguous()...)

	require.Len(t, drained, n)
	for i, r := range drained {
		require.Equal(t, uint64(i), r.Index)
		require.Equal(t, uint32(i)*3, r.Value)
	}
	assert.Zero(t, b.Len())
	assert.Equal(t, uint64(n), b.NextExpected())
}
