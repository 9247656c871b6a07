package malloc

import "fmt"
import "sort"
import "sync"
import "unsafe"
import "sync/atomic"

import "github.com/apache/arrow/go/v17/arrow/memory"
import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"

// Defaultchunksizes for PoolAllocators.
var Defaultchunksizes = []int64{64, 128, 256, 512, 1024, 2048, 3072, 4096, 5120}

// PoolAllocators holds several pool allocators of increasing chunk
// size. Requests are routed to the smallest pool whose chunk can hold
// the request, and fall back to the Go heap when every such pool is
// exhausted.
type PoolAllocators struct {
	// 64-bit aligned stats
	nfallbacks   int64 // number of allocations served by fallback
	fallbacksize int64 // bytes held by live fallback allocations

	pools     []*PoolAllocator // sorted by chunksize
	aligns    []int64          // chunk alignment of each pool, set by Init
	fallback  memory.Allocator
	heap      map[uintptr][]byte // live fallback allocations
	lock      sync.Locker        // guards heap
	logprefix string
}

// NewPoolAllocators create a pool allocator for each chunk size, with
// "numchunks" chunks per pool. If chunksizes is empty, sizes are
// derived from "minblock" and "maxblock" settings using Blocksizes().
// Call Init() before allocating.
func NewPoolAllocators(chunksizes []int64, setts s.Settings) *PoolAllocators {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	if len(chunksizes) == 0 {
		minblock, maxblock := setts.Int64("minblock"), setts.Int64("maxblock")
		chunksizes = Blocksizes(minblock, maxblock)
	}

	sizes := append([]int64(nil), chunksizes...)
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	numchunks := setts.Int64("numchunks")
	pools := &PoolAllocators{
		pools:    make([]*PoolAllocator, 0, len(sizes)),
		aligns:   make([]int64, len(sizes)),
		fallback: memory.DefaultAllocator,
		heap:     make(map[uintptr][]byte),
		lock:     newlocker(setts),
	}
	for i, size := range sizes {
		if i > 0 && sizes[i-1] == size {
			panicerr("duplicate chunk size %v", size)
		}
		pools.pools = append(pools.pools, NewPoolAllocator(size, numchunks, setts))
	}
	pools.logprefix = fmt.Sprintf("POOLS [%v-%v]", sizes[0], sizes[len(sizes)-1])
	return pools
}

// SetMemory provider for pools' arenas, must be called before Init().
func (pools *PoolAllocators) SetMemory(mem memory.Allocator) *PoolAllocators {
	for _, pool := range pools.pools {
		pool.SetMemory(mem)
	}
	return pools
}

// SetFallback allocator for requests that cannot be served by the
// pools, defaults to arrow's memory.DefaultAllocator.
func (pools *PoolAllocators) SetFallback(mem memory.Allocator) *PoolAllocators {
	pools.lock.Lock()
	defer pools.lock.Unlock()

	if len(pools.heap) > 0 {
		panicerr("%v cannot change fallback with live allocations", pools.logprefix)
	} else if mem == nil {
		panicerr("nil fallback allocator")
	}
	pools.fallback = mem
	return pools
}

// Init implement api.Allocator{} interface.
func (pools *PoolAllocators) Init() {
	for i, pool := range pools.pools {
		pool.Init()
		pools.aligns[i] = pool.Chunkalign()
	}
	pools.freeheap()
	fmsg := "%v initialized %v pools with %v\n"
	infof(fmsg, pools.logprefix, len(pools.pools), humanize.Bytes(uint64(pools.Totalsize())))
}

// Allocate implement api.Allocator{} interface.
func (pools *PoolAllocators) Allocate(size, alignment int64) (unsafe.Pointer, error) {
	checksize(size)
	checkalignment(alignment)

	from := sort.Search(len(pools.pools), func(i int) bool {
		return pools.pools[i].chunksize >= size
	})
	for i, pool := range pools.pools[from:] {
		if alignment > pools.aligns[from+i] {
			continue
		}
		if ptr, err := pool.Allocate(size, alignment); err == nil {
			return ptr, nil
		}
	}
	return pools.allocfallback(size, alignment), nil
}

// Alloc same as Allocate() with word alignment.
func (pools *PoolAllocators) Alloc(size int64) (unsafe.Pointer, error) {
	return pools.Allocate(size, api.Wordsize)
}

// Free implement api.Allocator{} interface.
func (pools *PoolAllocators) Free(ptr unsafe.Pointer) bool {
	if ptr == nil {
		return false
	}
	for _, pool := range pools.pools {
		if pool.Free(ptr) {
			return true
		}
	}

	pools.lock.Lock()
	buf, ok := pools.heap[uintptr(ptr)]
	if ok {
		delete(pools.heap, uintptr(ptr))
		pools.fallback.Free(buf)
		atomic.AddInt64(&pools.fallbacksize, -int64(len(buf)))
	}
	pools.lock.Unlock()
	return ok
}

// Reset implement api.Allocator{} interface. Fallback allocations
// are released as well.
func (pools *PoolAllocators) Reset() {
	for _, pool := range pools.pools {
		pool.Reset()
	}
	pools.freeheap()
}

// Release implement api.Allocator{} interface.
func (pools *PoolAllocators) Release() {
	for i, pool := range pools.pools {
		pool.Release()
		pools.aligns[i] = 0
	}
	pools.freeheap()
	infof("%v released\n", pools.logprefix)
}

// Totalsize implement api.Allocator{} interface.
func (pools *PoolAllocators) Totalsize() (total int64) {
	for _, pool := range pools.pools {
		total += pool.Totalsize()
	}
	return total
}

// Usedsize implement api.Allocator{} interface, allocations served
// by the fallback allocator are not accounted, refer Fallbacksize().
func (pools *PoolAllocators) Usedsize() (used int64) {
	for _, pool := range pools.pools {
		used += pool.Usedsize()
	}
	return used
}

// Fallbacks return the number of allocations that were served by the
// fallback allocator.
func (pools *PoolAllocators) Fallbacks() int64 {
	return atomic.LoadInt64(&pools.nfallbacks)
}

// Fallbacksize return bytes held by live fallback allocations.
func (pools *PoolAllocators) Fallbacksize() int64 {
	return atomic.LoadInt64(&pools.fallbacksize)
}

// Chunksizes managed by this allocator, in ascending order.
func (pools *PoolAllocators) Chunksizes() []int64 {
	sizes := make([]int64, 0, len(pools.pools))
	for _, pool := range pools.pools {
		sizes = append(sizes, pool.chunksize)
	}
	return sizes
}

// Utilization of each pool, as percentage of used to total memory.
func (pools *PoolAllocators) Utilization() ([]int, []float64) {
	ss := make([]int, 0, len(pools.pools))
	zs := make([]float64, 0, len(pools.pools))
	for _, pool := range pools.pools {
		used, capacity := float64(pool.Usedsize()), float64(pool.Totalsize())
		ss = append(ss, int(pool.chunksize))
		zs = append(zs, (used/capacity)*100)
	}
	return ss, zs
}

func (pools *PoolAllocators) allocfallback(size, alignment int64) unsafe.Pointer {
	pools.lock.Lock()
	defer pools.lock.Unlock()

	buf := pools.fallback.Allocate(int(size + alignment))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	ptr := unsafe.Pointer(&buf[alignpadding(addr, alignment)])
	pools.heap[uintptr(ptr)] = buf
	atomic.AddInt64(&pools.nfallbacks, 1)
	atomic.AddInt64(&pools.fallbacksize, int64(len(buf)))

	fmsg := "%v all allocators are full, fallback to heap for %v\n"
	log.Warnf(fmsg, pools.logprefix, humanize.Bytes(uint64(size)))
	return ptr
}

func (pools *PoolAllocators) freeheap() {
	pools.lock.Lock()
	defer pools.lock.Unlock()

	for key, buf := range pools.heap {
		pools.fallback.Free(buf)
		delete(pools.heap, key)
	}
	atomic.StoreInt64(&pools.fallbacksize, 0)
}
