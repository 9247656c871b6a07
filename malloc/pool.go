package malloc

import "fmt"
import "math"
import "sync"
import "unsafe"
import "sync/atomic"

import "github.com/apache/arrow/go/v17/arrow/memory"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"

// PoolAllocator manages an arena sliced up into equal sized chunks.
// Free chunks are tracked in a stack of chunk indices, hence both
// allocation and free are O(1).
type PoolAllocator struct {
	// 64-bit aligned stats
	used int64

	capacity   int64 // chunksize * numchunks
	chunksize  int64
	numchunks  int64
	chunkalign int64 // alignment honoured by every chunk
	freelist   []uint32
	arena      *arena
	lock       sync.Locker
	logprefix  string
}

// NewPoolAllocator create a pool of numchunks chunks, each chunksize
// bytes. Chunk size must be a multiple of api.Wordsize. Call Init()
// before allocating.
func NewPoolAllocator(chunksize, numchunks int64, setts s.Settings) *PoolAllocator {
	if chunksize <= 0 || (chunksize%api.Wordsize) != 0 {
		panicerr("chunksize %v is not multiple of %v", chunksize, api.Wordsize)
	} else if numchunks <= 0 || numchunks > math.MaxUint32 {
		panicerr("invalid numchunks %v", numchunks)
	} else if chunksize > math.MaxInt64/numchunks {
		panicerr("pool capacity overflow %v * %v", chunksize, numchunks)
	}

	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	capacity := chunksize * numchunks
	pool := &PoolAllocator{
		capacity:  capacity,
		chunksize: chunksize,
		numchunks: numchunks,
		arena:     newarena(capacity),
		lock:      newlocker(setts),
	}
	pool.logprefix = fmt.Sprintf("POOL [%v*%v]", chunksize, numchunks)
	return pool
}

// SetMemory provider for the arena, must be called before Init().
func (pool *PoolAllocator) SetMemory(mem memory.Allocator) *PoolAllocator {
	pool.arena.setmemory(mem)
	return pool
}

// Init implement api.Allocator{} interface.
func (pool *PoolAllocator) Init() {
	pool.lock.Lock()
	defer pool.lock.Unlock()

	pool.arena.acquire(pool.logprefix)
	pool.chunkalign = lowbit(uint64(pool.arena.base) | uint64(pool.chunksize))
	if pool.freelist == nil {
		pool.freelist = make([]uint32, 0, pool.numchunks)
	}
	pool.reset()
	fmsg := "%v initialized with %v, chunks aligned to %v\n"
	infof(fmsg, pool.logprefix, humanize.Bytes(uint64(pool.capacity)), pool.chunkalign)
}

// Allocate implement api.Allocator{} interface. Return
// api.ErrorInvalidSize if size is larger than chunksize.
func (pool *PoolAllocator) Allocate(size, alignment int64) (unsafe.Pointer, error) {
	checksize(size)
	checkalignment(alignment)

	pool.lock.Lock()
	defer pool.lock.Unlock()

	pool.arena.mustready(pool.logprefix)
	if alignment > pool.chunkalign {
		fmsg := "%v cannot honour alignment %v, chunks are %v byte aligned"
		panicerr(fmsg, pool.logprefix, alignment, pool.chunkalign)
	} else if size > pool.chunksize {
		return nil, api.ErrorInvalidSize
	}
	n := len(pool.freelist)
	if n == 0 {
		return nil, api.ErrorOutofMemory
	}
	nthchunk := int64(pool.freelist[n-1])
	pool.freelist = pool.freelist[:n-1]
	atomic.AddInt64(&pool.used, pool.chunksize)
	return pool.arena.pointer(nthchunk * pool.chunksize), nil
}

// Alloc same as Allocate() with word alignment.
func (pool *PoolAllocator) Alloc(size int64) (unsafe.Pointer, error) {
	return pool.Allocate(size, api.Wordsize)
}

// Free implement api.Allocator{} interface.
func (pool *PoolAllocator) Free(ptr unsafe.Pointer) bool {
	pool.lock.Lock()
	defer pool.lock.Unlock()

	pool.arena.mustready(pool.logprefix)
	diff, ok := pool.arena.offset(ptr)
	if !ok {
		return false
	} else if (diff % pool.chunksize) != 0 {
		fmsg := "%v free(): unaligned pointer: %x,%v"
		panicerr(fmsg, pool.logprefix, diff, pool.chunksize)
	}
	pool.freelist = append(pool.freelist, uint32(diff/pool.chunksize))
	atomic.AddInt64(&pool.used, -pool.chunksize)
	return true
}

// Reset implement api.Allocator{} interface.
func (pool *PoolAllocator) Reset() {
	pool.lock.Lock()
	defer pool.lock.Unlock()

	pool.arena.mustready(pool.logprefix)
	pool.reset()
	debugf("%v reset\n", pool.logprefix)
}

// Release implement api.Allocator{} interface.
func (pool *PoolAllocator) Release() {
	pool.lock.Lock()
	defer pool.lock.Unlock()

	pool.arena.release()
	pool.freelist, pool.chunkalign = nil, 0
	atomic.StoreInt64(&pool.used, 0)
	infof("%v released\n", pool.logprefix)
}

// Totalsize implement api.Allocator{} interface.
func (pool *PoolAllocator) Totalsize() int64 {
	return pool.capacity
}

// Usedsize implement api.Allocator{} interface.
func (pool *PoolAllocator) Usedsize() int64 {
	return atomic.LoadInt64(&pool.used)
}

// Chunksize managed by this pool.
func (pool *PoolAllocator) Chunksize() int64 {
	return pool.chunksize
}

// Numchunks managed by this pool.
func (pool *PoolAllocator) Numchunks() int64 {
	return pool.numchunks
}

// Chunkalign return the largest alignment every chunk honours, valid
// after Init().
func (pool *PoolAllocator) Chunkalign() int64 {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return pool.chunkalign
}

// Available return memory available for allocation.
func (pool *PoolAllocator) Available() int64 {
	return pool.capacity - pool.Usedsize()
}

// push every chunk to the free stack in ascending order.
func (pool *PoolAllocator) reset() {
	pool.freelist = pool.freelist[:0]
	for i := int64(0); i < pool.numchunks; i++ {
		pool.freelist = append(pool.freelist, uint32(i))
	}
	atomic.StoreInt64(&pool.used, 0)
}
