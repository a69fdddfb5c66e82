package slab

import (
	"math/bits"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/slabpool/pkg/slaberrors"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "zero object size",
			cfg:  Config{ObjectSize: 0, ObjectsPerChunk: 4, MaxObjects: 16},
		},
		{
			name: "objects per chunk not a power of two",
			cfg:  Config{ObjectSize: 32, ObjectsPerChunk: 3, MaxObjects: 16},
		},
		{
			name: "zero objects per chunk",
			cfg:  Config{ObjectSize: 32, ObjectsPerChunk: 0, MaxObjects: 16},
		},
		{
			name: "max objects not a power of two",
			cfg:  Config{ObjectSize: 32, ObjectsPerChunk: 4, MaxObjects: 24},
		},
		{
			name: "max objects below objects per chunk",
			cfg:  Config{ObjectSize: 32, ObjectsPerChunk: 16, MaxObjects: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			assert.Nil(t, p)
			require.Error(t, err)
			assert.True(t, slaberrors.IsType(err, slaberrors.ErrorTypeValidation))
			assert.False(t, slaberrors.IsRetryable(err))
		})
	}
}

func TestCapacityBound(t *testing.T) {
	// The cap must hold for any chunking that divides max objects.
	for _, perChunk := range []uint32{1, 2, 4, 8, 16} {
		p := newTestPool(t, Config{ObjectSize: 24, ObjectsPerChunk: perChunk, MaxObjects: 16})

		objs := make([]*Object, 0, 16)
		for i := 0; i < 16; i++ {
			obj, err := p.Get()
			require.NoError(t, err, "get %d with per-chunk %d", i, perChunk)
			objs = append(objs, obj)
		}

		obj, err := p.Get()
		assert.Nil(t, obj)
		require.Error(t, err)
		assert.True(t, slaberrors.IsType(err, slaberrors.ErrorTypeResourceExhausted))
		assert.True(t, slaberrors.IsRetryable(err), "exhaustion is flow control, callers retry")

		for _, o := range objs {
			p.Put(o)
		}
	}
}

func TestGetReturnsDistinctObjects(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 8, ObjectsPerChunk: 4, MaxObjects: 16})

	seen := make(map[*Object]bool)
	seenIdx := make(map[uint32]bool)
	for i := 0; i < 16; i++ {
		obj, err := p.Get()
		require.NoError(t, err)
		assert.False(t, seen[obj], "object handed out twice")
		assert.False(t, seenIdx[obj.Index()], "index %d handed out twice", obj.Index())
		seen[obj] = true
		seenIdx[obj.Index()] = true
		assert.Less(t, obj.Index(), uint32(16))
	}
}

func TestHandleStability(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 16, ObjectsPerChunk: 2, MaxObjects: 8})

	obj, err := p.Get()
	require.NoError(t, err)

	idx := obj.Index()
	for i := 0; i < 5; i++ {
		assert.Equal(t, idx, obj.Index(), "index must be constant while held")
	}

	// LIFO free list: releasing and immediately reacquiring yields the
	// same slot, and the index survives the round trip.
	p.Put(obj)
	again, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, obj, again)
	assert.Equal(t, idx, again.Index())
}

func TestGenerationMonotonicity(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 16, ObjectsPerChunk: 2, MaxObjects: 2})

	obj, err := p.Get()
	require.NoError(t, err)
	h := obj.Handle()
	assert.Equal(t, uint32(0), h.Generation, "fresh slot starts at generation zero")

	for i := 1; i <= 4; i++ {
		p.Put(obj)
		next, err := p.Get()
		require.NoError(t, err)
		require.Same(t, obj, next, "LIFO order must recycle the same slot")
		assert.Equal(t, h.Index, next.Index())
		assert.Equal(t, uint32(i), next.Generation(), "each release bumps the generation")
		assert.NotEqual(t, h, next.Handle(), "recorded handle must read as stale after recycling")
	}
}

func TestHandlePackRoundTrip(t *testing.T) {
	h := Handle{Index: 0xDEAD, Generation: 0xBEEF}
	assert.Equal(t, h, UnpackHandle(h.Pack()))
	assert.Equal(t, uint64(0xDEAD)<<32|uint64(0xBEEF), h.Pack())
}

func TestNonEmptyCallbackFiresOnTransitionOnly(t *testing.T) {
	calls := 0
	p := newTestPool(t, Config{
		ObjectSize:      32,
		ObjectsPerChunk: 2,
		MaxObjects:      4,
		OnNonEmpty:      func() { calls++ },
	})

	objs := make([]*Object, 0, 4)
	for i := 0; i < 4; i++ {
		obj, err := p.Get()
		require.NoError(t, err)
		objs = append(objs, obj)
	}
	_, err := p.Get()
	require.Error(t, err)

	// Releasing out of total exhaustion fires the callback exactly once.
	p.Put(objs[0])
	assert.Equal(t, 1, calls)

	// Further releases do not: the pool was no longer exhausted.
	p.Put(objs[1])
	p.Put(objs[2])
	assert.Equal(t, 1, calls)

	// A put while the pool was never exhausted must not fire either.
	obj, err := p.Get()
	require.NoError(t, err)
	p.Put(obj)
	assert.Equal(t, 1, calls)

	p.Put(objs[3])
}

func TestNonEmptyCallbackMayReenterGet(t *testing.T) {
	var p *Pool
	var recycled *Object
	cfg := Config{
		ObjectSize:      32,
		ObjectsPerChunk: 2,
		MaxObjects:      2,
	}
	cfg.OnNonEmpty = func() {
		// The freed slot is already linked, so this Get must succeed
		// and must return it.
		obj, err := p.Get()
		require.NoError(t, err)
		recycled = obj
	}

	var err error
	p, err = New(cfg)
	require.NoError(t, err)
	defer p.Close()

	a, err := p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)
	_ = b

	p.Put(a)
	require.NotNil(t, recycled)
	assert.Same(t, a, recycled)
}

func TestFindByIndexRoundTrip(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 48, ObjectsPerChunk: 4, MaxObjects: 32})

	held := make([]*Object, 0, 32)
	for i := 0; i < 32; i++ {
		obj, err := p.Get()
		require.NoError(t, err)
		held = append(held, obj)
	}

	for _, obj := range held {
		assert.Same(t, obj, p.FindByIndex(int(obj.Index())))
	}
}

func TestFindByIndexOutOfRange(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 8, ObjectsPerChunk: 4, MaxObjects: 16})

	// Only the first chunk exists so far.
	assert.NotNil(t, p.FindByIndex(0))
	assert.NotNil(t, p.FindByIndex(3))
	assert.Nil(t, p.FindByIndex(4), "index in an unallocated chunk")
	assert.Nil(t, p.FindByIndex(-1))
	assert.Nil(t, p.FindByIndex(16))
}

func TestFindByIndexRejectsIndexPastUint32(t *testing.T) {
	if bits.UintSize < 64 {
		t.Skip("needs 64-bit int to express an index past uint32")
	}
	p := newTestPool(t, Config{ObjectSize: 8, ObjectsPerChunk: 4, MaxObjects: 16})

	// The low 32 bits alias slot 2; a truncating bounds check would
	// hand back that slot instead of rejecting the index.
	huge := int(int64(1)<<32 + 2)
	assert.Nil(t, p.FindByIndex(huge))
}

func TestGrowCapCheckAtMaxUint32Boundary(t *testing.T) {
	probe := NewCountingAllocator(nil)

	// A full pool at the largest legal cap. An additive cap check
	// wraps to zero here and would attempt a chunk past the cap.
	p := &Pool{
		perChunk:   2,
		maxObjects: 1 << 31,
		allocated:  1 << 31,
		alloc:      probe,
	}

	err := p.grow()
	require.Error(t, err)
	assert.True(t, slaberrors.IsType(err, slaberrors.ErrorTypeResourceExhausted))
	assert.Zero(t, probe.Allocs(), "no chunk may be allocated past the cap")
}

func TestGrowthLaziness(t *testing.T) {
	probe := NewCountingAllocator(nil)
	p := newTestPool(t, Config{
		ObjectSize:      64,
		ObjectsPerChunk: 4,
		MaxObjects:      16,
		Allocator:       probe,
	})

	// Creation allocates exactly one chunk of 4 slots.
	assert.Equal(t, int64(1), probe.Allocs())
	assert.Equal(t, uint32(4), p.Stats().Allocated)

	objs := make([]*Object, 0, 5)
	for i := 0; i < 4; i++ {
		obj, err := p.Get()
		require.NoError(t, err)
		objs = append(objs, obj)
	}
	assert.Equal(t, int64(1), probe.Allocs(), "first four gets are served by the initial chunk")

	// The fifth get forces exactly one more chunk: 8 slots total.
	obj, err := p.Get()
	require.NoError(t, err)
	objs = append(objs, obj)
	assert.Equal(t, int64(2), probe.Allocs())
	assert.Equal(t, uint32(8), p.Stats().Allocated)

	for _, o := range objs {
		p.Put(o)
	}
}

// TestExampleScenario is the worked example: 32-byte objects, chunks of
// two, cap of four.
func TestExampleScenario(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 32, ObjectsPerChunk: 2, MaxObjects: 4})

	objs := make([]*Object, 4)
	for i := range objs {
		obj, err := p.Get()
		require.NoError(t, err)
		for _, prev := range objs[:i] {
			assert.NotSame(t, prev, obj)
		}
		objs[i] = obj
	}

	fifth, err := p.Get()
	assert.Nil(t, fifth)
	assert.True(t, slaberrors.IsType(err, slaberrors.ErrorTypeResourceExhausted))

	first := objs[0]
	idx, gen := first.Index(), first.Generation()
	p.Put(first)

	back, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, idx, back.Index())
	assert.Equal(t, gen+1, back.Generation())

	p.Put(back)
	p.Put(objs[1])
	p.Put(objs[2])
	p.Put(objs[3])
}

func TestPayloadSizeAndIsolation(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 10, ObjectsPerChunk: 4, MaxObjects: 4})

	a, err := p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)

	assert.Len(t, a.Bytes(), 10)
	assert.Equal(t, 10, cap(a.Bytes()), "payload view must not reach into the neighboring slot")

	for i := range a.Bytes() {
		a.Bytes()[i] = 0xAA
	}
	for _, c := range b.Bytes() {
		assert.EqualValues(t, 0, c, "writes to one payload must not leak into another")
	}
}

func TestStalePayloadSurvivesRecycle(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 4, ObjectsPerChunk: 2, MaxObjects: 2})

	obj, err := p.Get()
	require.NoError(t, err)
	copy(obj.Bytes(), []byte{1, 2, 3, 4})
	p.Put(obj)

	again, err := p.Get()
	require.NoError(t, err)
	require.Same(t, obj, again)
	assert.Equal(t, []byte{1, 2, 3, 4}, again.Bytes(), "payloads are handed back uninitialized")
}

func TestAlignedPayloads(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 24, ObjectsPerChunk: 8, MaxObjects: 8, Align: true})

	for i := 0; i < 8; i++ {
		obj, err := p.Get()
		require.NoError(t, err)
		addr := uintptr(unsafe.Pointer(&obj.Bytes()[0]))
		assert.Zero(t, addr%cacheLine, "payload %d not cache-line aligned", i)
	}
}

func TestCapacityAndStats(t *testing.T) {
	p := newTestPool(t, Config{ObjectSize: 16, ObjectsPerChunk: 4, MaxObjects: 16})

	perChunk, maxObjects := p.Capacity()
	assert.Equal(t, uint32(4), perChunk)
	assert.Equal(t, uint32(16), maxObjects)

	a, err := p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)
	p.Put(b)

	st := p.Stats()
	assert.Equal(t, uint32(4), st.Allocated)
	assert.Equal(t, uint32(1), st.InUse)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, uint64(2), st.Gets)
	assert.Equal(t, uint64(1), st.Puts)
	assert.Equal(t, uint64(0), st.Exhaustions)

	p.Put(a)
}

type failingAllocator struct {
	failAfter int
	calls     int
}

func (f *failingAllocator) Alloc(size int) ([]byte, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, slaberrors.New(slaberrors.ErrorTypeOutOfMemory, "simulated bulk allocation failure")
	}
	return make([]byte, size), nil
}

func (f *failingAllocator) Free(buf []byte) {}

func TestCreateFailsCleanlyOnAllocatorFailure(t *testing.T) {
	p, err := New(Config{
		ObjectSize:      32,
		ObjectsPerChunk: 4,
		MaxObjects:      16,
		Allocator:       &failingAllocator{failAfter: 0},
	})
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, slaberrors.IsType(err, slaberrors.ErrorTypeOutOfMemory))
}

func TestGrowthFailureLeavesPoolUsable(t *testing.T) {
	alloc := &failingAllocator{failAfter: 1}
	p, err := New(Config{
		ObjectSize:      32,
		ObjectsPerChunk: 2,
		MaxObjects:      8,
		Allocator:       alloc,
	})
	require.NoError(t, err)
	defer p.Close()

	a, err := p.Get()
	require.NoError(t, err)
	b, err := p.Get()
	require.NoError(t, err)

	// Growth for the third object hits the failing allocator.
	obj, err := p.Get()
	assert.Nil(t, obj)
	require.Error(t, err)
	assert.True(t, slaberrors.IsType(err, slaberrors.ErrorTypeOutOfMemory))

	// The pool stays in its last valid state: held objects still work
	// and release/reacquire cycles keep functioning.
	p.Put(a)
	again, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, a, again)

	p.Put(again)
	p.Put(b)
}

type recordingInstrumentation struct {
	NopInstrumentation
	created   int
	destroyed int
	acquired  int
	released  int
	chunks    int
	exhausted int
	nonEmpty  int
}

func (r *recordingInstrumentation) PoolCreated(perChunk, maxObjects uint32) { r.created++ }
func (r *recordingInstrumentation) PoolDestroyed()                          { r.destroyed++ }
func (r *recordingInstrumentation) ObjectAcquired()                         { r.acquired++ }
func (r *recordingInstrumentation) ObjectReleased()                         { r.released++ }
func (r *recordingInstrumentation) ChunkAllocated(slots uint32, bytes int)  { r.chunks++ }
func (r *recordingInstrumentation) Exhausted()                              { r.exhausted++ }
func (r *recordingInstrumentation) NonEmpty()                               { r.nonEmpty++ }

func TestInstrumentationHooks(t *testing.T) {
	rec := &recordingInstrumentation{}
	p, err := New(Config{
		ObjectSize:      16,
		ObjectsPerChunk: 2,
		MaxObjects:      2,
		Instrument:      rec,
		OnNonEmpty:      func() {},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rec.created)
	assert.Equal(t, 1, rec.chunks)

	a, _ := p.Get()
	b, _ := p.Get()
	_, err = p.Get()
	require.Error(t, err)
	assert.Equal(t, 2, rec.acquired)
	assert.Equal(t, 1, rec.exhausted)

	p.Put(a)
	assert.Equal(t, 1, rec.released)
	assert.Equal(t, 1, rec.nonEmpty)

	p.Put(b)
	p.Close()
	assert.Equal(t, 1, rec.destroyed)
}

func TestCountingAllocatorTracksFrees(t *testing.T) {
	probe := NewCountingAllocator(nil)
	p, err := New(Config{
		ObjectSize:      32,
		ObjectsPerChunk: 4,
		MaxObjects:      8,
		Allocator:       probe,
	})
	require.NoError(t, err)

	objs := make([]*Object, 0, 8)
	for i := 0; i < 8; i++ {
		obj, err := p.Get()
		require.NoError(t, err)
		objs = append(objs, obj)
	}
	for _, o := range objs {
		p.Put(o)
	}

	p.Close()
	assert.Equal(t, probe.Allocs(), probe.Frees(), "close must free every chunk")
	assert.Equal(t, probe.AllocBytes(), probe.FreedBytes())
}

func BenchmarkGetPut(b *testing.B) {
	p, err := New(Config{ObjectSize: 128, ObjectsPerChunk: 1024, MaxObjects: 1 << 16})
	if err != nil {
		b.Fatal(err)
	}
	defer p.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		obj, err := p.Get()
		if err != nil {
			b.Fatal(err)
		}
		p.Put(obj)
	}
}

func BenchmarkFindByIndex(b *testing.B) {
	p, err := New(Config{ObjectSize: 128, ObjectsPerChunk: 256, MaxObjects: 1 << 12})
	if err != nil {
		b.Fatal(err)
	}
	defer p.Close()

	objs := make([]*Object, 0, 1<<12)
	for {
		obj, err := p.Get()
		if err != nil {
			break
		}
		objs = append(objs, obj)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if p.FindByIndex(i&(len(objs)-1)) == nil {
			b.Fatal("lookup failed")
		}
	}
}
