package slab

// Object is one slot in a pool: a stable identity plus a fixed-size
// payload region. Objects are created once, at chunk-allocation time, and
// live as long as their pool. Get hands out the slot's permanent *Object,
// so pointer identity is preserved across release/reacquire cycles.
type Object struct {
	// next links the slot into the free list. It is meaningful only
	// while the slot is free; Get clears it.
	next *Object

	// payload is a bounds-checked view into the owning chunk's bulk
	// buffer, capped so appends cannot bleed into the neighboring slot.
	payload []byte

	index      uint32
	generation uint32

	// used is maintained and checked only in debug builds.
	used bool
}

// Handle is a stable (index, generation) pair. Record a handle while an
// object is held, and compare generations later to detect that the slot
// was recycled in the meantime.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Pack encodes the handle into a single uint64 (index in the high 32
// bits). Both fields are fixed at 32 bits so packed handles are stable
// across builds; generation wraparound is the caller's accepted risk.
func (h Handle) Pack() uint64 {
	return uint64(h.Index)<<32 | uint64(h.Generation)
}

// UnpackHandle is the inverse of Handle.Pack.
func UnpackHandle(v uint64) Handle {
	return Handle{
		Index:      uint32(v >> 32),
		Generation: uint32(v),
	}
}

// Index returns the slot's permanent index in [0, allocated capacity).
// It never changes while the pool lives, whether the object is held or
// free.
func (o *Object) Index() uint32 {
	return o.index
}

// Generation returns the slot's generation counter. It increments on
// every Put and wraps at 32 bits; wraparound is accepted so handles pack
// into a fixed 64-bit word.
func (o *Object) Generation() uint32 {
	return o.generation
}

// Handle returns the (index, generation) pair in one read, for building
// a staleness-checkable reference to this object.
func (o *Object) Handle() Handle {
	return Handle{Index: o.index, Generation: o.generation}
}

// Bytes returns the payload region. Contents are NOT zeroed: a reused
// slot carries whatever the previous holder wrote. Treat the buffer as
// uninitialized after every Get.
func (o *Object) Bytes() []byte {
	return o.payload
}
