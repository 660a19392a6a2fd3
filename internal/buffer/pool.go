// Package buffer implements a fixed-size byte-buffer pool leased to receive
// operations and returned after decode (spec.md §4.1).
package buffer

import (
	"context"
	"sync/atomic"

	"github.com/sylogd/agent/internal/core"
)

// Pool is a bounded free-list of equal-sized byte buffers. Lease blocks (or
// returns ctx.Err()) once the free list is empty and the growth budget is
// exhausted; Release never blocks. The free list is backed by a buffered
// channel, which gives the lease-blocks-when-empty / release-never-blocks
// pair for free without a separate mutex or condition variable.
type Pool struct {
	free       chan []byte
	bufferSize int
	maxBuffers int32
	allocated  atomic.Int32
	leased     atomic.Int32
}

// Config configures a Pool.
type Config struct {
	// BufferSize is the size of every buffer in the pool, in bytes.
	// Defaults to core.DefaultBufSize (65,535 — the maximum IPv4 datagram).
	BufferSize int
	// WarmBuffers is how many buffers are pre-allocated at construction.
	WarmBuffers int
	// MaxBuffers is the growth ceiling: lease allocates beyond WarmBuffers
	// up to this many before it blocks. Defaults to WarmBuffers (no growth).
	MaxBuffers int
}

// New constructs a Pool and pre-allocates cfg.WarmBuffers buffers.
func New(cfg Config) *Pool {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = core.DefaultBufSize
	}
	if cfg.MaxBuffers < cfg.WarmBuffers {
		cfg.MaxBuffers = cfg.WarmBuffers
	}
	if cfg.MaxBuffers <= 0 {
		cfg.MaxBuffers = 1
	}

	p := &Pool{
		free:       make(chan []byte, cfg.MaxBuffers),
		bufferSize: cfg.BufferSize,
		maxBuffers: int32(cfg.MaxBuffers),
	}
	for i := 0; i < cfg.WarmBuffers; i++ {
		p.free <- make([]byte, p.bufferSize)
		p.allocated.Add(1)
	}
	return p
}

// Lease returns a buffer, preferring the free list, then growing the pool up
// to MaxBuffers, then blocking until one is released or ctx is done.
func (p *Pool) Lease(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-p.free:
		clear(buf)
		p.leased.Add(1)
		return buf, nil
	default:
	}

	if p.allocated.Add(1) <= p.maxBuffers {
		p.leased.Add(1)
		return make([]byte, p.bufferSize), nil
	}
	p.allocated.Add(-1)

	select {
	case buf := <-p.free:
		clear(buf)
		p.leased.Add(1)
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns buf to the free list. Buffers are zeroed lazily: not here,
// but by Lease when a recycled buffer is handed out again.
func (p *Pool) Release(buf []byte) {
	p.leased.Add(-1)
	select {
	case p.free <- buf:
	default:
		// Pool is over-subscribed relative to its own free-list capacity;
		// this can only happen if a caller released more buffers than the
		// pool ever handed out. Drop it rather than block or panic.
	}
}

// InFlight returns the number of buffers currently leased out and not yet
// released. Used by tests to assert the pool drains to zero (spec.md §8
// property 6).
func (p *Pool) InFlight() int32 {
	return p.leased.Load()
}

// BufferSize returns the configured per-buffer size.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}
