package slab

import (
	"sync/atomic"

	"github.com/ajitpratap0/slabpool/pkg/slaberrors"
)

// Allocator is the bulk memory collaborator: one Alloc per chunk, one
// Free per chunk at Close. Implementations may fail; the pool reports
// the failure to its caller and never retries.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator satisfies Allocator with plain Go heap allocations.
// Free is a no-op; the garbage collector reclaims released chunks.
type HeapAllocator struct{}

// Alloc returns a zeroed buffer of the requested size.
func (HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, slaberrors.Newf(slaberrors.ErrorTypeInternal, "bulk allocation of %d bytes", size)
	}
	return make([]byte, size), nil
}

// Free releases the buffer to the garbage collector.
func (HeapAllocator) Free(buf []byte) {}

// CountingAllocator wraps another Allocator and counts traffic through
// it. It is the growth-laziness probe: tests and capacity planners read
// Allocs/FreedBytes to verify that chunks are allocated one at a time,
// on demand.
type CountingAllocator struct {
	inner Allocator

	allocs     int64
	frees      int64
	allocBytes int64
	freedBytes int64
}

// NewCountingAllocator wraps inner with counters. A nil inner defaults
// to HeapAllocator.
func NewCountingAllocator(inner Allocator) *CountingAllocator {
	if inner == nil {
		inner = HeapAllocator{}
	}
	return &CountingAllocator{inner: inner}
}

// Alloc delegates to the wrapped allocator, counting successful calls.
func (c *CountingAllocator) Alloc(size int) ([]byte, error) {
	buf, err := c.inner.Alloc(size)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.allocs, 1)
	atomic.AddInt64(&c.allocBytes, int64(len(buf)))
	return buf, nil
}

// Free delegates to the wrapped allocator, counting calls.
func (c *CountingAllocator) Free(buf []byte) {
	atomic.AddInt64(&c.frees, 1)
	atomic.AddInt64(&c.freedBytes, int64(len(buf)))
	c.inner.Free(buf)
}

// Allocs returns the number of successful bulk allocations.
func (c *CountingAllocator) Allocs() int64 {
	return atomic.LoadInt64(&c.allocs)
}

// Frees returns the number of Free calls.
func (c *CountingAllocator) Frees() int64 {
	return atomic.LoadInt64(&c.frees)
}

// AllocBytes returns the total bytes handed out.
func (c *CountingAllocator) AllocBytes() int64 {
	return atomic.LoadInt64(&c.allocBytes)
}

// FreedBytes returns the total bytes returned.
func (c *CountingAllocator) FreedBytes() int64 {
	return atomic.LoadInt64(&c.freedBytes)
}
