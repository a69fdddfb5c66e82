// Package slabpool provides a fixed-capacity, chunked object pool for
// workloads that need constant-time acquire and release, stable object
// identity, and a hard memory ceiling.
//
// The core lives in pkg/slab: a pool hands out fixed-size objects from
// bulk-allocated chunks, grows lazily one chunk at a time up to a
// configured cap, and recycles released objects through a LIFO free
// list. Every object carries a permanent index, valid for the pool's
// whole lifetime, and a generation counter that distinguishes
// successive tenancies of the same slot.
//
// # Packages
//
//   - pkg/slab: the pool itself, plus the Allocator and
//     Instrumentation extension points
//   - pkg/slaberrors: structured errors with types, details, and
//     stack capture
//   - pkg/metrics: a Prometheus-backed Instrumentation implementation
//   - pkg/config: YAML pool configuration with validation
//   - pkg/observability: phase tracing for benchmark runs
//   - pkg/performance: throughput, latency, and resource measurement
//   - pkg/logger: structured logging built on zap
//
// # Quick Start
//
//	p, err := slab.New(slab.Config{
//	    ObjectSize:      4096,
//	    ObjectsPerChunk: 64,
//	    MaxObjects:      65536,
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	obj, err := p.Get()
//	if err != nil {
//	    return err // pool at capacity, or allocation failed
//	}
//	copy(obj.Bytes(), payload)
//	p.Put(obj)
//
// The cmd/slabpool binary drives pools through exhaustion and recovery
// waves and reports throughput, latency percentiles, and resource
// usage as JSON.
package slabpool
