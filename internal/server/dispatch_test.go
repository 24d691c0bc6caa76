package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsTasks(t *testing.T) {
	d := NewDispatcher(4, 16)
	d.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, d.Enqueue(func(context.Context) { ran.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.EqualValues(t, 10, ran.Load())
}

func TestDispatcherRejectsBeforeStartAndAfterStop(t *testing.T) {
	d := NewDispatcher(1, 1)
	assert.False(t, d.Enqueue(func(context.Context) {}))

	d.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	assert.False(t, d.Enqueue(func(context.Context) {}))
}

// Enqueue must never land a send on the closed task channel, however it
// interleaves with Stop. A panic here crashes the handler goroutine, so the
// test hammers the interleaving across many start/stop cycles under -race.
func TestDispatcherEnqueueDuringStop(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := NewDispatcher(2, 4)
		d.Start()

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Keep sending through the stop; a full queue also returns
				// false, so the result is ignored rather than used as a
				// stop signal.
				for n := 0; n < 500; n++ {
					d.Enqueue(func(context.Context) {})
				}
			}()
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, d.Stop(ctx))
		cancel()
		wg.Wait()
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, 1)
	d.Start()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, d.Enqueue(func(context.Context) {
		defer wg.Done()
		<-block
	}))

	// Wait for the worker to pick up the blocking task, then fill the buffer.
	require.Eventually(t, func() bool {
		return d.Enqueue(func(context.Context) {})
	}, time.Second, time.Millisecond)

	// Buffer of one is now occupied; the next enqueue must drop.
	assert.False(t, d.Enqueue(func(context.Context) {}))

	close(block)
	wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}
