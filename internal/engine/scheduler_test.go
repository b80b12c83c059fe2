package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_BoundedConcurrency(t *testing.T) {
	s := NewScheduler(2)
	defer s.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		ok := s.Submit(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}, func() { wg.Done() })
		require.True(t, ok)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2), "pool capacity exceeded")
}

func TestScheduler_SubmitAfterCloseFails(t *testing.T) {
	s := NewScheduler(1)
	s.Close()

	ok := s.Submit(func() {}, func() {})
	assert.False(t, ok)
}

func TestScheduler_CloseRejectsWaitingTasks(t *testing.T) {
	s := NewScheduler(1)

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, s.Submit(func() {
		close(started)
		<-block
	}, func() {}))
	<-started

	rejected := make(chan struct{})
	require.True(t, s.Submit(func() {
		t.Error("queued task must not run after close")
	}, func() { close(rejected) }))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	s.Close()

	select {
	case <-rejected:
	case <-time.After(2 * time.Second):
		t.Fatal("waiting task was never rejected")
	}
}

func TestTxWorker_StrictlySequentialFIFO(t *testing.T) {
	w := newTxWorker()

	var mu sync.Mutex
	var order []int
	var inside atomic.Int32

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		i := i
		wg.Add(1)
		require.True(t, w.Submit(func() {
			defer wg.Done()
			assert.Equal(t, int32(1), inside.Add(1), "two tasks ran concurrently")
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			inside.Add(-1)
		}))
	}
	wg.Wait()
	w.Close()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestTxWorker_SubmitAfterCloseFails(t *testing.T) {
	w := newTxWorker()
	w.Close()
	assert.False(t, w.Submit(func() {}))
}

func TestTxWorker_CloseDrainsQueuedTasks(t *testing.T) {
	w := newTxWorker()

	var ran atomic.Int32
	gate := make(chan struct{})
	require.True(t, w.Submit(func() { <-gate; ran.Add(1) }))
	require.True(t, w.Submit(func() { ran.Add(1) }))

	close(gate)
	w.Close()
	assert.Equal(t, int32(2), ran.Load(), "queued tasks drain before the worker stops")
}
