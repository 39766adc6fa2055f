package concurrency

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual_market/pkg/logging"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logging.NewNop())

	var counter atomic.Int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func() { counter.Add(1) }))
	}
	pool.Stop()

	assert.Equal(t, int64(20), counter.Load())
}

func TestWorkerPool_GroupWaits(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logging.NewNop())
	defer pool.Stop()

	var counter atomic.Int64
	group := pool.Group()
	for i := 0; i < 10; i++ {
		group.Submit(func() { counter.Add(1) })
	}
	group.Wait()

	assert.Equal(t, int64(10), counter.Load())
}

func TestWorkerPool_NonBlockingRejectsWhenFull(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "test",
		MaxWorkers:  1,
		MaxCapacity: 1,
		NonBlocking: true,
	}, logging.NewNop())
	defer pool.Stop()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the single queue slot.
	require.NoError(t, pool.Submit(func() { <-block }))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, pool.Submit(func() {}))

	err := pool.Submit(func() {})
	assert.Error(t, err)
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 8}, logging.NewNop())

	var counter atomic.Int64
	require.NoError(t, pool.Submit(func() { panic("boom") }))
	require.NoError(t, pool.Submit(func() { counter.Add(1) }))
	pool.Stop()

	assert.Equal(t, int64(1), counter.Load())
}
