package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LeaseRelease(t *testing.T) {
	p := New(Config{BufferSize: 128, WarmBuffers: 2, MaxBuffers: 2})
	ctx := context.Background()

	buf, err := p.Lease(ctx)
	require.NoError(t, err)
	assert.Len(t, buf, 128)
	assert.EqualValues(t, 1, p.InFlight())

	p.Release(buf)
	assert.EqualValues(t, 0, p.InFlight())
}

func TestPool_GrowsUpToMax(t *testing.T) {
	p := New(Config{BufferSize: 64, WarmBuffers: 1, MaxBuffers: 3})
	ctx := context.Background()

	var bufs [][]byte
	for i := 0; i < 3; i++ {
		buf, err := p.Lease(ctx)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}
	assert.EqualValues(t, 3, p.InFlight())

	for _, b := range bufs {
		p.Release(b)
	}
	assert.EqualValues(t, 0, p.InFlight())
}

func TestPool_LeaseBlocksUntilRelease(t *testing.T) {
	p := New(Config{BufferSize: 32, WarmBuffers: 1, MaxBuffers: 1})
	ctx := context.Background()

	buf, err := p.Lease(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		b2, err := p.Lease(context.Background())
		require.NoError(t, err)
		p.Release(b2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("lease should have blocked with pool exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release(buf)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lease never unblocked after release")
	}
}

func TestPool_LeaseRespectsCancellation(t *testing.T) {
	p := New(Config{BufferSize: 16, WarmBuffers: 1, MaxBuffers: 1})
	_, err := p.Lease(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Lease(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_ConcurrentLeaseReleaseNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	const goroutines = 20
	p := New(Config{BufferSize: 16, WarmBuffers: capacity, MaxBuffers: capacity})

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := p.Lease(context.Background())
			require.NoError(t, err)
			assert.LessOrEqual(t, p.InFlight(), int32(capacity))
			time.Sleep(time.Millisecond)
			p.Release(buf)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 0, p.InFlight())
}
