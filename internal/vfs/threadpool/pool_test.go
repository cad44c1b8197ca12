package threadpool

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStressFourWorkersHundredTasks(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	for round := 0; round < 10; round++ {
		var counter atomic.Int64
		for i := 0; i < 100; i++ {
			pool.Enqueue(func() error {
				counter.Add(1)
				return nil
			})
		}
		pool.WaitAll()
		assert.Equal(t, int64(100), counter.Load(), "round %d", round)
	}
}

func TestPoolEmptyWaitAllReturnsImmediately(t *testing.T) {
	pool := New(1)

	done := make(chan struct{})
	go func() {
		pool.WaitAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAll on an empty pool deadlocked")
	}

	pool.Close()
}

func TestPoolEnqueueWithResultAndWaitAll(t *testing.T) {
	pool := New(3)
	defer pool.Close()

	futures := make([]*Future, 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		futures = append(futures, pool.EnqueueWithResult(func() error {
			if i == 7 {
				return fmt.Errorf("shard %d failed", i)
			}
			return nil
		}))
	}

	ok := WaitAll(futures)
	assert.False(t, ok)

	require.NoError(t, futures[0].Wait())
	require.Error(t, futures[7].Wait())
}

func TestPoolSignalsOnCompletionNotPop(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	pool.Enqueue(func() error {
		close(started)
		<-release
		return nil
	})

	<-started

	waitAllReturned := make(chan struct{})
	go func() {
		pool.WaitAll()
		close(waitAllReturned)
	}()

	select {
	case <-waitAllReturned:
		t.Fatal("WaitAll returned before the in-flight task finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-waitAllReturned:
	case <-time.After(time.Second):
		t.Fatal("WaitAll never returned after the task finished")
	}
}

func TestPoolRecoversPanicsInFireAndForgetTasks(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	var reportedID string
	pool.OnPanic(func(taskID string, recovered any) {
		reportedID = taskID
	})

	pool.Enqueue(func() error {
		panic("boom")
	})
	pool.WaitAll()

	assert.NotEmpty(t, reportedID)
}

func TestPoolRecoversPanicsInResultTasks(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	f := pool.EnqueueWithResult(func() error {
		panic("boom")
	})

	err := f.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestNumThreads(t *testing.T) {
	pool := New(5)
	defer pool.Close()
	assert.Equal(t, 5, pool.NumThreads())

	zero := New(0)
	defer zero.Close()
	assert.Equal(t, 1, zero.NumThreads())
}

func TestOccupancyReflectsQueuedAndInFlightTasks(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	queueDepth, inFlight := pool.Occupancy()
	assert.Equal(t, 0, queueDepth)
	assert.Equal(t, 0, inFlight)

	release := make(chan struct{})
	started := make(chan struct{})

	pool.Enqueue(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	// The sole worker is now busy with the first task, so a second
	// task sits in the queue instead of running.
	pool.Enqueue(func() error { return nil })

	queueDepth, inFlight = pool.Occupancy()
	assert.Equal(t, 1, queueDepth)
	assert.Equal(t, 1, inFlight)

	close(release)
	pool.WaitAll()

	queueDepth, inFlight = pool.Occupancy()
	assert.Equal(t, 0, queueDepth)
	assert.Equal(t, 0, inFlight)
}
