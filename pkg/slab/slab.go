package slab

import (
	"math/bits"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ajitpratap0/slabpool/pkg/logger"
	"github.com/ajitpratap0/slabpool/pkg/slaberrors"
)

const (
	// cacheLine is the payload alignment applied when Config.Align is
	// set. Matches the 64-byte line on x86-64 and most ARM64 parts.
	cacheLine = 64

	// wordAlign is the payload rounding applied when Config.Align is
	// not set.
	wordAlign = 8
)

// Config describes a pool. ObjectsPerChunk and MaxObjects must both be
// powers of two with MaxObjects >= ObjectsPerChunk; the power-of-two
// constraint lets index lookup use a shift and a mask instead of a
// division.
type Config struct {
	// ObjectSize is the usable payload size of every object, in bytes.
	ObjectSize int

	// ObjectsPerChunk is how many slots each bulk allocation holds.
	ObjectsPerChunk uint32

	// MaxObjects is the hard cap on total slots. Growth past it is
	// reported as resource exhaustion, never attempted.
	MaxObjects uint32

	// Align pads every payload to start on a 64-byte boundary and
	// rounds the slot stride up to 64 bytes. Without it payloads are
	// rounded to 8 bytes.
	Align bool

	// NoGeneration declares that callers never use generation counters
	// to validate recycled indices. Debug builds then treat
	// FindByIndex on a free slot as a usage error, because without
	// generations the caller cannot tell a recycled slot from the one
	// it remembered.
	NoGeneration bool

	// OnNonEmpty, when set, is invoked from inside the Put that
	// transitions the pool from fully exhausted back to having a free
	// slot. The freed slot is already on the free list when the
	// callback runs, so reentering Get from the callback is legal and
	// can return that very slot. A Put issued from the callback while
	// the pool is fully exhausted again re-fires it; bounding that
	// recursion is the callback's job. Capture any context in the
	// closure.
	OnNonEmpty func()

	// Allocator supplies bulk chunk memory. Nil means HeapAllocator.
	Allocator Allocator

	// Instrument receives lifecycle notifications. Nil disables it.
	Instrument Instrumentation

	// Logger overrides the package logger for diagnostics. Nil uses
	// the global one.
	Logger *zap.Logger
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	// Allocated is the number of slots backed by chunks so far.
	Allocated uint32 `json:"allocated"`
	// InUse is the number of objects currently held by callers.
	InUse uint32 `json:"in_use"`
	// Chunks is the number of bulk allocations made.
	Chunks int `json:"chunks"`
	// Gets counts successful acquisitions over the pool's lifetime.
	Gets uint64 `json:"gets"`
	// Puts counts releases over the pool's lifetime.
	Puts uint64 `json:"puts"`
	// Exhaustions counts Get failures at the MaxObjects cap.
	Exhaustions uint64 `json:"exhaustions"`
}

// Pool is a chunked, fixed-capacity object pool. It is not safe for
// concurrent use; see the package documentation.
type Pool struct {
	objectSize int
	stride     int
	align      bool
	noGen      bool

	perChunk   uint32
	maxObjects uint32
	chunkShift uint32

	allocated uint32
	inUse     uint32

	chunks [][]byte   // chunk directory: one bulk buffer per chunk
	meta   [][]Object // slot headers, parallel to chunks
	free   *Object    // LIFO free list head

	onNonEmpty func()
	alloc      Allocator
	inst       Instrumentation
	log        *zap.Logger

	gets        uint64
	puts        uint64
	exhaustions uint64
}

// New creates a pool and eagerly allocates its first chunk, so a
// successful New guarantees ObjectsPerChunk objects are immediately
// available. On any failure every partial allocation is released and an
// error is returned; no pool state survives.
func New(cfg Config) (*Pool, error) {
	if cfg.ObjectSize <= 0 {
		return nil, slaberrors.New(slaberrors.ErrorTypeValidation, "object size must be positive").
			WithDetail("object_size", cfg.ObjectSize)
	}
	if !isPowerOfTwo(cfg.ObjectsPerChunk) {
		return nil, slaberrors.New(slaberrors.ErrorTypeValidation, "objects per chunk must be a power of two").
			WithDetail("objects_per_chunk", cfg.ObjectsPerChunk)
	}
	if !isPowerOfTwo(cfg.MaxObjects) {
		return nil, slaberrors.New(slaberrors.ErrorTypeValidation, "max objects must be a power of two").
			WithDetail("max_objects", cfg.MaxObjects)
	}
	if cfg.MaxObjects < cfg.ObjectsPerChunk {
		return nil, slaberrors.New(slaberrors.ErrorTypeValidation, "max objects must be at least objects per chunk").
			WithDetail("objects_per_chunk", cfg.ObjectsPerChunk).
			WithDetail("max_objects", cfg.MaxObjects)
	}

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	stride := roundUp(cfg.ObjectSize, wordAlign)
	if cfg.Align {
		stride = roundUp(cfg.ObjectSize, cacheLine)
	}

	dirSize := cfg.MaxObjects / cfg.ObjectsPerChunk
	p := &Pool{
		objectSize: cfg.ObjectSize,
		stride:     stride,
		align:      cfg.Align,
		noGen:      cfg.NoGeneration,
		perChunk:   cfg.ObjectsPerChunk,
		maxObjects: cfg.MaxObjects,
		chunkShift: uint32(bits.TrailingZeros32(cfg.ObjectsPerChunk)),
		chunks:     make([][]byte, 0, dirSize),
		meta:       make([][]Object, 0, dirSize),
		onNonEmpty: cfg.OnNonEmpty,
		alloc:      alloc,
		inst:       cfg.Instrument,
		log:        log,
	}

	if err := p.grow(); err != nil {
		// grow failed before recording anything, so the directory is
		// the only allocation to abandon.
		return nil, err
	}

	if p.inst != nil {
		p.inst.PoolCreated(p.perChunk, p.maxObjects)
	}
	return p, nil
}

// grow adds exactly one chunk of perChunk slots, or reports why it
// cannot: resource exhaustion at the MaxObjects cap, or out-of-memory
// from the bulk allocator. The pool is unchanged on failure.
func (p *Pool) grow() error {
	// Subtraction form: the additive check overflows uint32 when
	// maxObjects is 1<<31 and the pool is full. New guarantees
	// maxObjects >= perChunk, so the subtraction cannot wrap.
	if p.allocated > p.maxObjects-p.perChunk {
		return slaberrors.New(slaberrors.ErrorTypeResourceExhausted, "pool at maximum capacity").
			WithDetail("max_objects", p.maxObjects)
	}

	size := int(p.perChunk) * p.stride
	if p.align {
		size += cacheLine - 1
	}
	buf, err := p.alloc.Alloc(size)
	if err != nil {
		p.log.Error("slab chunk allocation failed",
			zap.Int("chunk_bytes", size),
			zap.Uint32("allocated", p.allocated),
			zap.Error(err))
		return slaberrors.Wrap(err, slaberrors.ErrorTypeOutOfMemory, "chunk allocation failed").
			WithDetail("chunk_bytes", size)
	}

	base := 0
	if p.align {
		addr := uintptr(unsafe.Pointer(&buf[0]))
		base = int((cacheLine - addr%cacheLine) % cacheLine)
	}

	slots := make([]Object, p.perChunk)
	for i := uint32(0); i < p.perChunk; i++ {
		obj := &slots[i]
		obj.index = p.allocated + i
		obj.generation = 0
		start := base + int(i)*p.stride
		obj.payload = buf[start : start+p.objectSize : start+p.objectSize]

		// Head-first push: the last slot of a fresh chunk is the
		// first one Get hands out.
		obj.next = p.free
		p.free = obj
	}

	p.chunks = append(p.chunks, buf)
	p.meta = append(p.meta, slots)
	p.allocated += p.perChunk

	if p.inst != nil {
		p.inst.ChunkAllocated(p.perChunk, size)
	}
	return nil
}

// Get acquires an object. When the free list is empty it grows the pool
// by one chunk first; when the pool is already at MaxObjects it returns
// a resource_exhausted error, and when the bulk allocator fails it
// returns an out_of_memory error with the pool left in its last valid
// state. The payload is NOT zeroed.
func (p *Pool) Get() (*Object, error) {
	if p.free == nil {
		if err := p.grow(); err != nil {
			if slaberrors.IsType(err, slaberrors.ErrorTypeResourceExhausted) {
				p.exhaustions++
				if p.inst != nil {
					p.inst.Exhausted()
				}
			}
			return nil, err
		}
	}

	obj := p.free
	p.free = obj.next
	obj.next = nil

	if debugEnabled {
		debugAssert(!obj.used, "object on free list already marked in use")
		obj.used = true
	}

	p.inUse++
	p.gets++
	if p.inst != nil {
		p.inst.ObjectAcquired()
	}
	return obj, nil
}

// Put releases an object back to the free list. The object must have
// been returned by Get on this pool and not released since; violations
// are undefined in release builds and panic in debug builds.
//
// If this Put transitions the pool from fully exhausted (InUse ==
// MaxObjects) to having a free slot, the OnNonEmpty callback runs after
// the slot is linked, so the callback can reenter Get and receive it.
func (p *Pool) Put(obj *Object) {
	// Wraps at 32 bits; accepted so handles keep a fixed width.
	obj.generation++

	if debugEnabled {
		debugAssert(obj.used, "release of object not in use")
		obj.used = false
	}

	wasExhausted := p.inUse == p.maxObjects

	obj.next = p.free
	p.free = obj
	p.inUse--
	p.puts++

	if p.inst != nil {
		p.inst.ObjectReleased()
	}

	if wasExhausted {
		if p.inst != nil {
			p.inst.NonEmpty()
		}
		if p.onNonEmpty != nil {
			p.onNonEmpty()
		}
	}
}

// FindByIndex returns the object with the given permanent index, without
// touching the free list, or nil when the index is outside the
// currently-allocated range. With NoGeneration pools, debug builds treat
// lookup of a free slot as a usage error.
func (p *Pool) FindByIndex(index int) *Object {
	// Compare in the int domain: converting first would truncate on
	// 64-bit platforms and map huge indices onto valid slots.
	if index < 0 || index >= int(p.allocated) {
		return nil
	}

	chunk := uint32(index) >> p.chunkShift
	offset := uint32(index) & (p.perChunk - 1)
	obj := &p.meta[chunk][offset]

	if debugEnabled && p.noGen {
		debugAssert(obj.used, "lookup of freed slot in a pool without generation tracking")
	}
	return obj
}

// Close releases every chunk and the chunk directory through the
// Allocator. Objects still held by callers are not detected; releasing
// them all first is the caller's contract. The pool must not be used
// after Close.
func (p *Pool) Close() {
	for i, buf := range p.chunks {
		p.alloc.Free(buf)
		p.chunks[i] = nil
	}
	p.chunks = nil
	p.meta = nil
	p.free = nil
	p.allocated = 0
	p.inUse = 0

	if p.inst != nil {
		p.inst.PoolDestroyed()
	}
}

// Capacity returns the pool's sizing parameters: objects per chunk and
// the maximum total objects.
func (p *Pool) Capacity() (objectsPerChunk, maxObjects uint32) {
	return p.perChunk, p.maxObjects
}

// Stats returns a snapshot of the pool's accounting counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Allocated:   p.allocated,
		InUse:       p.inUse,
		Chunks:      len(p.chunks),
		Gets:        p.gets,
		Puts:        p.puts,
		Exhaustions: p.exhaustions,
	}
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func roundUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}
