package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEverySubmittedTask(t *testing.T) {
	p := New(4, 8)
	var ran atomic.Int64
	for i := 0; i < 1000; i++ {
		require.NoError(t, p.Submit(context.Background(), func() { ran.Add(1) }))
	}
	p.ShutdownAndWait()

	assert.Equal(t, int64(1000), ran.Load())
	st := p.Stats()
	assert.Equal(t, int64(1000), st.Submitted)
	assert.Equal(t, int64(1000), st.Completed)
	assert.Equal(t, 4, st.Workers)
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	p := New(1, 1)
	p.ShutdownAndWait()
	p.ShutdownAndWait()

	err := p.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoolSubmitHonorsContextWhenFull(t *testing.T) {
	p := New(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started
	// fills the queue
	require.NoError(t, p.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.ShutdownAndWait()
	assert.Equal(t, int64(2), p.Stats().Completed)
}

func TestPoolRunsConcurrently(t *testing.T) {
	const workers = 4
	p := New(workers, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	gate := make(chan struct{})
	for i := 0; i < workers; i++ {
		require.NoError(t, p.Submit(context.Background(), func() {
			wg.Done()
			<-gate
		}))
	}

	// every task reaches the barrier only if all run at once
	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run concurrently")
	}
	close(gate)
	p.ShutdownAndWait()
}

func TestNewDefaults(t *testing.T) {
	p := New(0, 0)
	defer p.ShutdownAndWait()
	st := p.Stats()
	assert.Positive(t, st.Workers)
	assert.Equal(t, st.Workers*2, cap(p.tasks))
}
