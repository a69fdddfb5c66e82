package slab

// Instrumentation receives pass-through notifications at pool lifecycle
// boundaries. It exists for memory checkers and metrics backends; the
// pool's behavior never depends on what a hook does. All hooks are
// invoked synchronously on the caller's goroutine, under the same
// external serialization the pool itself requires.
type Instrumentation interface {
	// PoolCreated fires once, after New succeeds.
	PoolCreated(objectsPerChunk, maxObjects uint32)
	// PoolDestroyed fires once, at the end of Close.
	PoolDestroyed()
	// ObjectAcquired fires on every successful Get.
	ObjectAcquired()
	// ObjectReleased fires on every Put, before the non-empty callback.
	ObjectReleased()
	// ChunkAllocated fires after a chunk is added: slot count and the
	// bulk bytes obtained from the Allocator.
	ChunkAllocated(slots uint32, bytes int)
	// Exhausted fires when Get fails because the pool is at MaxObjects.
	Exhausted()
	// NonEmpty fires when a Put transitions the pool out of total
	// exhaustion, whether or not a callback is registered; when one
	// is, the hook runs first.
	NonEmpty()
}

// NopInstrumentation implements Instrumentation with no-ops. Embed it to
// implement only the hooks you care about.
type NopInstrumentation struct{}

func (NopInstrumentation) PoolCreated(objectsPerChunk, maxObjects uint32) {}
func (NopInstrumentation) PoolDestroyed()                                 {}
func (NopInstrumentation) ObjectAcquired()                                {}
func (NopInstrumentation) ObjectReleased()                                {}
func (NopInstrumentation) ChunkAllocated(slots uint32, bytes int)         {}
func (NopInstrumentation) Exhausted()                                     {}
func (NopInstrumentation) NonEmpty()                                      {}
