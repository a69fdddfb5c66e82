// Package slab implements a fixed-capacity, chunked object pool that hands
// out fixed-size payload buffers in O(1) without touching the general
// allocator on every request.
//
// Architecture
//
// A Pool owns a directory of chunks. Each chunk is one bulk allocation
// holding ObjectsPerChunk slots; chunks are allocated lazily, one at a
// time, until MaxObjects is reached. Unallocated slots thread through a
// LIFO free list. Every slot carries a permanent index, assigned
// contiguously at chunk-allocation time, and a generation counter that
// increments on every release so stale handles can be detected.
//
// Core Types:
//
//   - Pool: the chunked pool; Get/Put/FindByIndex/Close
//   - Object: one slot; stable Index, Generation, payload accessor
//   - Handle: packable (index, generation) pair for staleness checks
//   - Allocator: the bulk memory collaborator (heap by default)
//   - Instrumentation: optional hooks at pool lifecycle boundaries
//
// Usage:
//
//	p, err := slab.New(slab.Config{
//		ObjectSize:      256,
//		ObjectsPerChunk: 64,
//		MaxObjects:      4096,
//	})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	obj, err := p.Get()
//	if err != nil {
//		return err // resource_exhausted when the pool is at its cap
//	}
//	buf := obj.Bytes() // uninitialized; may hold a previous user's data
//	// ... use buf ...
//	p.Put(obj)
//
// Exhaustion and the non-empty callback
//
// When the free list is empty and the pool is already at MaxObjects, Get
// returns a resource_exhausted error. That is flow control, not a defect.
// A producer that ran dry registers Config.OnNonEmpty: the callback fires
// from inside the Put that transitions the pool from fully exhausted back
// to having a free slot. The freed slot is already linked when the
// callback runs, so the callback may reenter Get and receive it.
//
// Concurrency
//
// A Pool is NOT internally synchronized. Get, Put, FindByIndex and chunk
// growth mutate shared state without locking. Use one pool per goroutine
// or serialize access externally. The non-empty callback runs
// synchronously inside Put under whatever exclusion the caller provides;
// no additional locking happens around it.
//
// Debug builds
//
// Building with the "debug" tag compiles in usage assertions: double
// release, acquisition of an in-use slot through a stale free list, and
// FindByIndex on a freed slot when the pool was created with
// NoGeneration. Release builds omit the checks entirely.
package slab
