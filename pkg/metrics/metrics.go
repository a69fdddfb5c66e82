// Package metrics provides Prometheus instrumentation for slab pools.
//
// # Overview
//
// The package exposes pool lifecycle counters and gauges and packages
// them as a slab.Instrumentation so a pool reports itself without any
// metrics code of its own:
//
//	collector := metrics.NewPoolCollector("frame_buffers")
//	p, err := slab.New(slab.Config{
//	    ObjectSize:      4096,
//	    ObjectsPerChunk: 64,
//	    MaxObjects:      4096,
//	    Instrument:      collector,
//	})
//
// # Metric Types
//
// Counter: monotonically increasing values (gets, puts, exhaustions)
// Gauge: values that move both ways (objects currently in use)
//
// All metrics carry a "pool" label so several pools share one registry.
// The hooks run synchronously inside Get/Put and add only an atomic
// increment each.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pre-registered metric vectors. Every PoolCollector binds these with
// its own pool label.
var (
	// Gets counts successful object acquisitions per pool.
	Gets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabpool_gets_total",
			Help: "Total successful object acquisitions",
		},
		[]string{"pool"},
	)

	// Puts counts object releases per pool.
	Puts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabpool_puts_total",
			Help: "Total object releases",
		},
		[]string{"pool"},
	)

	// ChunksAllocated counts bulk chunk allocations per pool.
	ChunksAllocated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabpool_chunks_allocated_total",
			Help: "Total chunk allocations",
		},
		[]string{"pool"},
	)

	// ChunkBytes counts bulk bytes obtained from the allocator.
	ChunkBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabpool_chunk_bytes_total",
			Help: "Total bytes obtained from the bulk allocator",
		},
		[]string{"pool"},
	)

	// Exhaustions counts gets refused at the max-objects cap.
	Exhaustions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabpool_exhaustions_total",
			Help: "Gets refused because the pool was at maximum capacity",
		},
		[]string{"pool"},
	)

	// NonEmptyWakeups counts exhaustion-to-available transitions.
	NonEmptyWakeups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabpool_non_empty_wakeups_total",
			Help: "Releases that transitioned a fully exhausted pool back to non-empty",
		},
		[]string{"pool"},
	)

	// ObjectsInUse gauges objects currently held by callers.
	ObjectsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slabpool_objects_in_use",
			Help: "Objects currently held by callers",
		},
		[]string{"pool"},
	)

	// MaxObjects gauges the configured hard cap, for dashboard ratios.
	MaxObjects = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slabpool_max_objects",
			Help: "Configured hard cap on pool objects",
		},
		[]string{"pool"},
	)
)

// PoolCollector implements slab.Instrumentation on top of the package
// metric vectors. One collector per pool instance.
type PoolCollector struct {
	name string

	gets            prometheus.Counter
	puts            prometheus.Counter
	chunksAllocated prometheus.Counter
	chunkBytes      prometheus.Counter
	exhaustions     prometheus.Counter
	nonEmpty        prometheus.Counter
	inUse           prometheus.Gauge
	maxObjects      prometheus.Gauge
}

// NewPoolCollector creates a collector labeled with the pool name.
func NewPoolCollector(name string) *PoolCollector {
	return &PoolCollector{
		name:            name,
		gets:            Gets.WithLabelValues(name),
		puts:            Puts.WithLabelValues(name),
		chunksAllocated: ChunksAllocated.WithLabelValues(name),
		chunkBytes:      ChunkBytes.WithLabelValues(name),
		exhaustions:     Exhaustions.WithLabelValues(name),
		nonEmpty:        NonEmptyWakeups.WithLabelValues(name),
		inUse:           ObjectsInUse.WithLabelValues(name),
		maxObjects:      MaxObjects.WithLabelValues(name),
	}
}

// Name returns the pool label this collector reports under.
func (c *PoolCollector) Name() string {
	return c.name
}

// PoolCreated records the configured cap.
func (c *PoolCollector) PoolCreated(objectsPerChunk, maxObjects uint32) {
	c.maxObjects.Set(float64(maxObjects))
}

// PoolDestroyed zeroes the live gauges.
func (c *PoolCollector) PoolDestroyed() {
	c.inUse.Set(0)
	c.maxObjects.Set(0)
}

// ObjectAcquired records a successful Get.
func (c *PoolCollector) ObjectAcquired() {
	c.gets.Inc()
	c.inUse.Inc()
}

// ObjectReleased records a Put.
func (c *PoolCollector) ObjectReleased() {
	c.puts.Inc()
	c.inUse.Dec()
}

// ChunkAllocated records one bulk allocation.
func (c *PoolCollector) ChunkAllocated(slots uint32, bytes int) {
	c.chunksAllocated.Inc()
	c.chunkBytes.Add(float64(bytes))
}

// Exhausted records a Get refused at the cap.
func (c *PoolCollector) Exhausted() {
	c.exhaustions.Inc()
}

// NonEmpty records an exhaustion-to-available transition.
func (c *PoolCollector) NonEmpty() {
	c.nonEmpty.Inc()
}
